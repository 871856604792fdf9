package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RollSatrs/speechcenter-admin/internal/history"
	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

type answerPayload struct {
	TextRu string `json:"textRu"`
	TextKz string `json:"textKz"`
	Points int    `json:"points"`
}

type questionPayload struct {
	TextRu  string          `json:"textRu"`
	TextKz  string          `json:"textKz"`
	Answers []answerPayload `json:"answers"`
}

type rulePayload struct {
	MinScore *int   `json:"minScore"`
	MaxScore *int   `json:"maxScore"`
	Label    string `json:"label"`
	TextRu   string `json:"textRu"`
	TextKz   string `json:"textKz"`
}

type testPayload struct {
	Name      string            `json:"name"`
	AgeFrom   *int              `json:"ageFrom"`
	AgeTo     *int              `json:"ageTo"`
	Questions []questionPayload `json:"questions"`
	Rules     []rulePayload     `json:"rules"`
}

func (p *testPayload) normalize() store.TestInput {
	in := store.TestInput{Name: strings.TrimSpace(p.Name)}
	if p.AgeFrom != nil {
		in.AgeFrom = *p.AgeFrom
	}
	if p.AgeTo != nil {
		in.AgeTo = *p.AgeTo
	}
	for _, q := range p.Questions {
		question := store.QuestionInput{
			TextRu: strings.TrimSpace(q.TextRu),
			TextKz: strings.TrimSpace(q.TextKz),
		}
		for _, a := range q.Answers {
			question.Answers = append(question.Answers, store.AnswerInput{
				TextRu: strings.TrimSpace(a.TextRu),
				TextKz: strings.TrimSpace(a.TextKz),
				Points: a.Points,
			})
		}
		in.Questions = append(in.Questions, question)
	}
	for _, r := range p.Rules {
		rule := store.RuleInput{
			Label:  strings.TrimSpace(r.Label),
			TextRu: strings.TrimSpace(r.TextRu),
			TextKz: strings.TrimSpace(r.TextKz),
		}
		if r.MinScore != nil {
			rule.MinScore = *r.MinScore
		}
		if r.MaxScore != nil {
			rule.MaxScore = *r.MaxScore
		}
		in.Rules = append(in.Rules, rule)
	}
	return in
}

// validateTestPayload mirrors what the editor UI enforces; messages are
// shown to the operator as-is.
func validateTestPayload(p *testPayload, in store.TestInput) string {
	if in.Name == "" {
		return "Введите название теста."
	}
	if p.AgeFrom == nil || p.AgeTo == nil {
		return "Возрастной диапазон должен быть целыми числами."
	}
	if in.AgeFrom < 0 || in.AgeTo < 0 || in.AgeFrom >= in.AgeTo {
		return "Диапазон возраста должен быть корректным: от меньше чем до."
	}
	if len(in.Questions) == 0 {
		return "Добавьте хотя бы один вопрос."
	}
	for _, q := range in.Questions {
		if q.TextRu == "" || q.TextKz == "" {
			return "У каждого вопроса должны быть тексты на русском и казахском."
		}
	}
	for _, q := range in.Questions {
		if len(q.Answers) < 2 {
			return "У каждого вопроса должно быть минимум 2 варианта ответа."
		}
	}
	for _, q := range in.Questions {
		for _, a := range q.Answers {
			if a.TextRu == "" || a.TextKz == "" {
				return "У каждого ответа должны быть 2 языка и валидные баллы."
			}
		}
	}
	if len(in.Rules) == 0 {
		return "Добавьте хотя бы одно правило результата."
	}
	for i, r := range in.Rules {
		if r.Label == "" || r.TextRu == "" || r.TextKz == "" ||
			p.Rules[i].MinScore == nil || p.Rules[i].MaxScore == nil ||
			r.MinScore > r.MaxScore {
			return "Проверьте правила результата: границы и тексты должны быть заполнены."
		}
	}
	return ""
}

func (r *Router) handleTestsList(c *gin.Context) {
	items, err := r.store.ListTestSummaries(c.Request.Context())
	if err != nil {
		r.logger.Error("tests list failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	if items == nil {
		items = []store.TestSummary{}
	}
	writeJSON(c, http.StatusOK, gin.H{"items": items})
}

func (r *Router) handleTestCreate(c *gin.Context) {
	var payload testPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: "Введите название теста."})
		return
	}
	in := payload.normalize()
	if msg := validateTestPayload(&payload, in); msg != "" {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: msg})
		return
	}
	if r.rejectAgeOverlap(c, in.AgeFrom, in.AgeTo, 0) {
		return
	}

	id, err := r.store.CreateTest(c.Request.Context(), in)
	if err != nil {
		r.logger.Error("test create failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	r.auditTestChange(c, history.ActionTestCreate, id)
	writeJSON(c, http.StatusCreated, gin.H{"ok": true, "id": id})
}

func (r *Router) handleTestGet(c *gin.Context) {
	id, ok := parseTestID(c)
	if !ok {
		return
	}
	detail, err := r.store.GetTestDetail(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrTestNotFound {
			writeJSON(c, http.StatusNotFound, messageResp{Message: "Not found"})
			return
		}
		r.logger.Error("test get failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	writeJSON(c, http.StatusOK, detail)
}

func (r *Router) handleTestUpdate(c *gin.Context) {
	id, ok := parseTestID(c)
	if !ok {
		return
	}
	if _, err := r.store.GetTestDetail(c.Request.Context(), id); err != nil {
		if err == store.ErrTestNotFound {
			writeJSON(c, http.StatusNotFound, messageResp{Message: "Not found"})
			return
		}
		r.logger.Error("test update failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}

	var payload testPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: "Введите название теста."})
		return
	}
	in := payload.normalize()
	if msg := validateTestPayload(&payload, in); msg != "" {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: msg})
		return
	}
	if r.rejectAgeOverlap(c, in.AgeFrom, in.AgeTo, id) {
		return
	}

	if err := r.store.UpdateTest(c.Request.Context(), id, in); err != nil {
		r.logger.Error("test update failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return
	}
	r.auditTestChange(c, history.ActionTestUpdate, id)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// rejectAgeOverlap answers 409 when another test already covers part of
// the requested age range.
func (r *Router) rejectAgeOverlap(c *gin.Context, ageFrom, ageTo int, excludeID int64) bool {
	overlap, err := r.store.FindOverlappingTest(c.Request.Context(), ageFrom, ageTo, excludeID)
	if err != nil {
		r.logger.Error("overlap check failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, messageResp{Message: "Internal error"})
		return true
	}
	if overlap != nil {
		writeJSON(c, http.StatusConflict, gin.H{
			"code": "AGE_RANGE_OVERLAP",
			"message": fmt.Sprintf("Диапазон %d-%d пересекается с тестом %q (%d-%d).",
				ageFrom, ageTo, overlap.Name, overlap.AgeFrom, overlap.AgeTo),
		})
		return true
	}
	return false
}

func parseTestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(c, http.StatusBadRequest, messageResp{Message: "Invalid test id"})
		return 0, false
	}
	return id, true
}

func (r *Router) auditTestChange(c *gin.Context, action history.Action, id int64) {
	actor := ""
	if admin := currentAdmin(c); admin != nil {
		actor = admin.Email
	}
	r.audit.Record(c.Request.Context(), history.Event{
		Action: action,
		Actor:  actor,
		Target: strconv.FormatInt(id, 10),
	})
}
