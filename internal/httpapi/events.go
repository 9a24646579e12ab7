package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/iondrive-co/chad/internal/eventlog"
)

func parseSinceSeq(r *http.Request) uint64 {
	v := r.URL.Query().Get("since_seq")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleMilestones(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sinceSeq := parseSinceSeq(r)

	events, err := sess.Log.ReadEvents(0, []eventlog.Type{eventlog.TypeMilestone})
	if err != nil {
		writeError(w, err)
		return
	}

	milestones := make([]eventlog.Milestone, 0, len(events))
	var latestSeq uint64
	for _, e := range events {
		if e.Milestone == nil {
			continue
		}
		if e.Milestone.MilestoneSeq > latestSeq {
			latestSeq = e.Milestone.MilestoneSeq
		}
		if e.Milestone.MilestoneSeq <= sinceSeq {
			continue
		}
		milestones = append(milestones, *e.Milestone)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"milestones": milestones,
		"latest_seq": latestSeq,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sinceSeq := parseSinceSeq(r)

	var typeFilter []eventlog.Type
	if raw := r.URL.Query().Get("event_types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				typeFilter = append(typeFilter, eventlog.Type(t))
			}
		}
	}

	events, err := sess.Log.ReadEvents(sinceSeq, typeFilter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":     events,
		"latest_seq": sess.Log.MaxSeq(),
		"session_id": sess.ID,
	})
}
