package service

import "isle_quest_backend/internal/model"

// StaticCatalog serves a fixed quest list. Quest content management lives
// outside this service; the catalog interface is the seam it plugs into.
type StaticCatalog struct {
	quests []model.Quest
	index  map[string]model.Quest
}

func NewStaticCatalog(quests []model.Quest) *StaticCatalog {
	index := make(map[string]model.Quest, len(quests))
	for _, q := range quests {
		index[q.ID] = q
	}
	return &StaticCatalog{quests: quests, index: index}
}

func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog([]model.Quest{
		{ID: "1", Title: "Follow the Isle on X", Description: "Follow the official account and link your post.", XP: 10, RequiresProof: true},
		{ID: "2", Title: "Share your isle", Description: "Post your progress anywhere on the open web.", XP: 10, RequiresProof: true},
		{ID: "3", Title: "Join the Discord crew", Description: "Link your Discord invite acceptance.", XP: 15, RequiresProof: true},
		{ID: "4", Title: "Ride the Telegram tide", Description: "Join the announcement channel.", XP: 15, RequiresProof: true},
		{ID: "5", Title: "Join the waitlist", Description: "Opt in to early access.", XP: 25, RequiresProof: false},
	})
}

func (c *StaticCatalog) All() []model.Quest {
	out := make([]model.Quest, len(c.quests))
	copy(out, c.quests)
	return out
}

func (c *StaticCatalog) ByID(id string) (model.Quest, bool) {
	q, ok := c.index[id]
	return q, ok
}
