package server

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

var stepLabels = map[string]string{
	"idle":                  "Старт",
	"chooseUiLanguage":      "Выбор языка",
	"parentPhone":           "Телефон родителя",
	"parentFullName":        "ФИО родителя",
	"confirmParentFullName": "Подтверждение ФИО",
	"childFullName":         "ФИО ребёнка",
	"childLanguage":         "Язык ребёнка",
	"childAge":              "Возраст ребёнка",
	"confirmData":           "Подтверждение данных",
	"mainMenu":              "Главное меню",
	"testQuestion":          "Прохождение теста",
}

func stepLabel(step string) string {
	if label, ok := stepLabels[step]; ok {
		return label
	}
	return step
}

func languageLabel(lang string) string {
	switch lang {
	case "ru":
		return "Русский"
	case "kz":
		return "Казахский"
	default:
		return "Два языка"
	}
}

func calculateAge(birthDate, now time.Time) *int {
	age := now.Year() - birthDate.Year()
	beforeBirthday := now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day())
	if beforeBirthday {
		age--
	}
	if age < 0 {
		return nil
	}
	return &age
}

type sessionItem struct {
	SessionID      int64     `json:"sessionId"`
	ParentID       int64     `json:"parentId"`
	ParentFullName string    `json:"parentFullName"`
	ParentPhone    string    `json:"parentPhone"`
	ChildID        *int64    `json:"childId"`
	ChildFullName  *string   `json:"childFullName"`
	Status         string    `json:"status"`
	Step           string    `json:"step"`
	StepLabel      string    `json:"stepLabel"`
	StartedAt      time.Time `json:"startedAt"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
}

type sessionsSummary struct {
	UniqueParents int `json:"uniqueParents"`
	Active24h     int `json:"active24h"`
	Done          int `json:"done"`
	Stuck         int `json:"stuck"`
}

// handleSessionsUsers shows the latest intake session per parent plus
// activity counters for the operators.
func (r *Router) handleSessionsUsers(c *gin.Context) {
	ctx := c.Request.Context()
	sessions, err := r.store.ListUserSessions(ctx)
	if err != nil {
		r.logger.Error("sessions list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}

	// sessions come back newest first; the first row per parent wins
	latest := make([]store.UserSession, 0, len(sessions))
	seen := make(map[int64]bool, len(sessions))
	for _, s := range sessions {
		if !seen[s.ParentID] {
			seen[s.ParentID] = true
			latest = append(latest, s)
		}
	}

	parentIDs := make([]int64, 0, len(latest))
	var childIDs []int64
	for _, s := range latest {
		parentIDs = append(parentIDs, s.ParentID)
		if s.ChildID.Valid {
			childIDs = append(childIDs, s.ChildID.Int64)
		}
	}

	parents, err := r.store.ListParentsByIDs(ctx, parentIDs)
	if err != nil {
		r.logger.Error("sessions list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	children, err := r.store.ListChildrenByIDs(ctx, childIDs)
	if err != nil {
		r.logger.Error("sessions list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}

	parentByID := make(map[int64]store.Parent, len(parents))
	for _, p := range parents {
		parentByID[p.ID] = p
	}
	childByID := make(map[int64]store.Child, len(children))
	for _, ch := range children {
		childByID[ch.ID] = ch
	}

	now := time.Now()
	active24h := now.Add(-24 * time.Hour)
	stuck72h := now.Add(-72 * time.Hour)

	items := make([]sessionItem, 0, len(latest))
	summary := sessionsSummary{UniqueParents: len(latest)}
	for _, s := range latest {
		item := sessionItem{
			SessionID:      s.ID,
			ParentID:       s.ParentID,
			ParentFullName: fmt.Sprintf("Parent #%d", s.ParentID),
			ParentPhone:    "—",
			Status:         s.Status,
			Step:           s.Step,
			StepLabel:      stepLabel(s.Step),
			StartedAt:      s.StartedAt,
			LastSeenAt:     s.LastSeenAt,
		}
		if p, ok := parentByID[s.ParentID]; ok {
			item.ParentFullName = p.FullName
			item.ParentPhone = p.Phone
		}
		if s.ChildID.Valid {
			if ch, ok := childByID[s.ChildID.Int64]; ok {
				id := ch.ID
				name := ch.FullName
				item.ChildID = &id
				item.ChildFullName = &name
			}
		}
		if !s.LastSeenAt.Before(active24h) {
			summary.Active24h++
		}
		if s.Status == "done" {
			summary.Done++
		} else if s.LastSeenAt.Before(stuck72h) {
			summary.Stuck++
		}
		items = append(items, item)
	}

	writeJSON(c, http.StatusOK, gin.H{"summary": summary, "items": items})
}

func (r *Router) handleUserAll(c *gin.Context) {
	summary, err := r.analytics.Summary(c.Request.Context())
	if err != nil {
		r.logger.Error("user summary failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	writeJSON(c, http.StatusOK, summary)
}

type leadChild struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"fullName"`
	BirthDate time.Time `json:"birthDate"`
	Language  string    `json:"language"`
	Age       *int      `json:"age"`
}

type leadItem struct {
	ParentID       int64       `json:"parentId"`
	ParentFullName string      `json:"parentFullName"`
	ChildrenCount  int         `json:"childrenCount"`
	CreatedAt      time.Time   `json:"createdAt"`
	Status         string      `json:"status"`
	Children       []leadChild `json:"children"`
}

// handleUserList joins leads with parents and their children. A parent
// with any hot lead shows as hot regardless of other warm leads.
func (r *Router) handleUserList(c *gin.Context) {
	ctx := c.Request.Context()
	leads, err := r.store.ListLeads(ctx)
	if err != nil {
		r.logger.Error("user list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	if len(leads) == 0 {
		writeJSON(c, http.StatusOK, gin.H{"items": []leadItem{}})
		return
	}

	var parentIDs []int64
	seen := make(map[int64]bool)
	hotByParent := make(map[int64]bool)
	for _, lead := range leads {
		if !seen[lead.ParentID] {
			seen[lead.ParentID] = true
			parentIDs = append(parentIDs, lead.ParentID)
		}
		if lead.Status == "hot" {
			hotByParent[lead.ParentID] = true
		}
	}

	parents, err := r.store.ListParentsByIDs(ctx, parentIDs)
	if err != nil {
		r.logger.Error("user list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	children, err := r.store.ListChildrenByParentIDs(ctx, parentIDs)
	if err != nil {
		r.logger.Error("user list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}

	childrenByParent := make(map[int64][]store.Child)
	for _, ch := range children {
		childrenByParent[ch.ParentID] = append(childrenByParent[ch.ParentID], ch)
	}

	now := time.Now()
	items := make([]leadItem, 0, len(parents))
	for _, parent := range parents {
		status := "warm"
		if hotByParent[parent.ID] {
			status = "hot"
		}
		kids := childrenByParent[parent.ID]
		list := make([]leadChild, 0, len(kids))
		for _, ch := range kids {
			list = append(list, leadChild{
				ID:        ch.ID,
				FullName:  ch.FullName,
				BirthDate: ch.BirthDate,
				Language:  languageLabel(ch.Language),
				Age:       calculateAge(ch.BirthDate, now),
			})
		}
		items = append(items, leadItem{
			ParentID:       parent.ID,
			ParentFullName: parent.FullName,
			ChildrenCount:  len(list),
			CreatedAt:      parent.CreatedAt,
			Status:         status,
			Children:       list,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	writeJSON(c, http.StatusOK, gin.H{"items": items})
}

func (r *Router) handleUserTimeline(c *gin.Context) {
	timeline, err := r.analytics.Timeline(c.Request.Context())
	if err != nil {
		r.logger.Error("user timeline failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	var totalParents, totalChildren int
	for _, p := range timeline {
		totalParents += p.Parents
		totalChildren += p.Children
	}
	writeJSON(c, http.StatusOK, gin.H{
		"totalParents":  totalParents,
		"totalChildren": totalChildren,
		"timeline":      timeline,
	})
}
