package events

var reactionGlyphs = map[string]ReactionKind{
	"👍": ReactionLike,
	"😍": ReactionLove,
	"😆": ReactionHaha,
	"😮": ReactionWow,
	"😢": ReactionSad,
	"😠": ReactionAngry,
	"🥰": ReactionCare,
}

// reactionKind maps a reaction glyph to its named kind. Unknown glyphs map to
// ReactionNone.
func reactionKind(glyph string) ReactionKind {
	return reactionGlyphs[glyph]
}

// Glyph returns the emoji sent for r, or "" for ReactionNone.
func (r ReactionKind) Glyph() string {
	for g, k := range reactionGlyphs {
		if k == r {
			return g
		}
	}
	return ""
}
