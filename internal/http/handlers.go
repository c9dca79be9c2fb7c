package http

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"splitdash/internal/core"
	applog "splitdash/internal/log"
	"splitdash/internal/relay"
	"splitdash/internal/splitwise"
)

type sessionUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type sessionResponse struct {
	User sessionUser `json:"user"`
}

type groupMember struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type groupView struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	Members []groupMember `json:"members"`
}

type groupsResponse struct {
	Groups []groupView `json:"groups"`
}

type dashboardResponse struct {
	GroupID    int64 `json:"groupId"`
	ObserverID int64 `json:"observerId"`
	core.Dashboard
}

// credential pulls the opaque session credential off the request. Empty means
// the caller never authenticated.
func credential(r *http.Request) string {
	return r.Header.Get(relay.CredentialHeader)
}

// credentialDigest keys caches without retaining the credential itself.
func credentialDigest(cred string) string {
	sum := sha256.Sum256([]byte(cred))
	return hex.EncodeToString(sum[:8])
}

// mainData serves the user-and-groups payload through the session cache.
func (s *Server) mainData(r *http.Request, cred string) (splitwise.MainData, error) {
	key := credentialDigest(cred)
	if md, ok := s.sessionCache.Get(key); ok {
		return md, nil
	}
	md, err := s.client.MainData(r.Context(), cred)
	if err != nil {
		return splitwise.MainData{}, err
	}
	s.sessionCache.Set(key, md)
	return md, nil
}

// expenses serves a group's normalized expense batch through the expense
// cache, keyed on credential digest plus group so sessions never share data.
func (s *Server) expenses(r *http.Request, cred string, groupID int64) ([]core.ExpenseRecord, error) {
	key := credentialDigest(cred) + ":" + strconv.FormatInt(groupID, 10)
	if records, ok := s.expenseCache.Get(key); ok {
		return records, nil
	}
	records, err := s.client.GroupExpenses(r.Context(), cred, groupID, s.expenseLimit)
	if err != nil {
		return nil, err
	}
	s.expenseCache.Set(key, records)
	return records, nil
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cred := credential(r)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "missing credential")
		return
	}

	md, err := s.mainData(r, cred)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "session check failed", applog.FieldError, err)
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{User: sessionUser{
		ID:        md.User.ID,
		FirstName: md.User.FirstName,
		LastName:  md.User.LastName,
		Email:     md.User.Email,
	}})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	cred := credential(r)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "missing credential")
		return
	}

	md, err := s.mainData(r, cred)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "group listing failed", applog.FieldError, err)
		writeUpstreamError(w, err)
		return
	}

	resp := groupsResponse{Groups: make([]groupView, 0, len(md.Groups))}
	for _, g := range md.Groups {
		gv := groupView{ID: g.ID, Name: g.Name, Members: make([]groupMember, 0, len(g.Members))}
		for _, m := range g.Members {
			gv.Members = append(gv.Members, groupMember{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName})
		}
		resp.Groups = append(resp.Groups, gv)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	cred := credential(r)
	if cred == "" {
		writeError(w, http.StatusUnauthorized, "missing credential")
		return
	}

	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil || groupID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	// An absent or unparseable observer yields the empty dashboard rather
	// than an error; the client shows blank views until a member is picked.
	observerID, _ := strconv.ParseInt(r.URL.Query().Get("observer_id"), 10, 64)
	if observerID < 0 {
		observerID = 0
	}

	var (
		md      splitwise.MainData
		records []core.ExpenseRecord
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		md, err = s.mainData(r.WithContext(ctx), cred)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.expenses(r.WithContext(ctx), cred, groupID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(r.Context(), "dashboard fetch failed",
			applog.FieldGroupID, groupID,
			applog.FieldError, err,
		)
		writeUpstreamError(w, err)
		return
	}

	var members []core.Member
	found := false
	for _, grp := range md.Groups {
		if grp.ID == groupID {
			members = grp.Members
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}

	dash := core.Aggregate(records, observerID, members)
	s.logger.DebugContext(r.Context(), "dashboard built",
		applog.FieldGroupID, groupID,
		applog.FieldObserverID, observerID,
		applog.FieldBatchSize, len(records),
	)
	writeJSON(w, http.StatusOK, dashboardResponse{
		GroupID:    groupID,
		ObserverID: observerID,
		Dashboard:  dash,
	})
}
