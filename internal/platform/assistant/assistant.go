// Package assistant answers dashboard questions by matching keywords against
// an ordered rule table. Each rule renders a fixed sentence filled with
// figures computed from the current clinic snapshot.
package assistant

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
)

// Reply is the assistant's answer to one message.
type Reply struct {
	Topic       string   `json:"topic"`
	Content     string   `json:"content"`
	Suggestions []string `json:"suggestions"`
}

// Query is what a rule sees: the folded message and the data to answer from.
type Query struct {
	Message  string
	Snapshot *clinic.Snapshot
	Now      time.Time
	Calendar *calendar.Calendar
}

// Rule pairs a predicate with the responder used when it matches.
type Rule struct {
	Topic   string
	Match   func(msg string) bool
	Respond func(q Query) Reply
}

// Keywords matches when msg contains any of the given words. Words are
// folded the same way as incoming messages.
func Keywords(words ...string) func(string) bool {
	folded := make([]string, len(words))
	for i, w := range words {
		folded[i] = Fold(w)
	}
	return func(msg string) bool {
		for _, w := range folded {
			if strings.Contains(msg, w) {
				return true
			}
		}
		return false
	}
}

// Fold lower-cases s and strips diacritics so "Estadísticas" matches
// "estadisticas".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Assistant evaluates its rules top to bottom. The first match answers; when
// none matches the fallback does.
type Assistant struct {
	rules    []Rule
	fallback func(Query) Reply
	cal      *calendar.Calendar
}

func New(cal *calendar.Calendar) *Assistant {
	return &Assistant{rules: DefaultRules(), fallback: defaultReply, cal: cal}
}

// WithRules replaces the rule table.
func (a *Assistant) WithRules(rules ...Rule) *Assistant {
	a.rules = rules
	return a
}

func (a *Assistant) Rules() []Rule { return a.rules }

// Answer replies to message using snap as of now.
func (a *Assistant) Answer(snap *clinic.Snapshot, now time.Time, message string) Reply {
	if snap == nil {
		snap = &clinic.Snapshot{}
	}
	q := Query{Message: Fold(message), Snapshot: snap, Now: now, Calendar: a.cal}
	for _, r := range a.rules {
		if r.Match(q.Message) {
			reply := r.Respond(q)
			reply.Topic = r.Topic
			return reply
		}
	}
	reply := a.fallback(q)
	reply.Topic = TopicDefault
	return reply
}

// Greeting opens a conversation.
func Greeting() Reply {
	return Reply{
		Topic:   TopicGreeting,
		Content: "¡Hola! Soy tu asistente para la clínica. Puedo ayudarte con información sobre reservas, pacientes, servicios y estadísticas. ¿En qué puedo ayudarte hoy?",
		Suggestions: []string{
			"¿Cuántas reservas tengo hoy?",
			"Mostrar ingresos del mes",
			"¿Cuál es mi servicio más popular?",
			"Mostrar estadísticas generales",
		},
	}
}
