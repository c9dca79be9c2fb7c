package splitwise

import "splitdash/internal/core"

// Wire shapes for the non-expense upstream payloads. Expense items decode
// straight into core.RawExpense, so those shapes live with the normalizer.

type mainDataResponse struct {
	User   rawUser    `json:"user"`
	Groups []rawGroup `json:"groups"`
}

type rawUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type rawGroup struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Members []rawMember `json:"members"`
}

type rawMember struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u rawUser) toCore() core.User {
	return core.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

func (g rawGroup) toCore() core.Group {
	cg := core.Group{ID: g.ID, Name: g.Name, Members: make([]core.Member, 0, len(g.Members))}
	for _, m := range g.Members {
		cg.Members = append(cg.Members, core.Member{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName})
	}
	return cg
}
