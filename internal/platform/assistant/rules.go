package assistant

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
	"github.com/clinicdash/clinic/internal/platform/reporting"
)

const (
	TopicGreeting     = "greeting"
	TopicAnalytics    = "analytics"
	TopicReservations = "reservations"
	TopicPatients     = "patients"
	TopicServices     = "services"
	TopicDefault      = "default"
)

// Currency is appended to money amounts.
const Currency = "Bs"

// DefaultRules is the rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Topic:   TopicAnalytics,
			Match:   Keywords("ingresos", "ganancia", "estadísticas", "resumen", "análisis", "reporte"),
			Respond: analyticsReply,
		},
		{
			Topic:   TopicReservations,
			Match:   Keywords("reservas", "citas", "agenda", "calendario", "horario"),
			Respond: reservationsReply,
		},
		{
			Topic:   TopicPatients,
			Match:   Keywords("pacientes", "clientes", "personas"),
			Respond: patientsReply,
		},
		{
			Topic:   TopicServices,
			Match:   Keywords("servicios", "tratamientos", "procedimientos", "popular", "solicitado"),
			Respond: servicesReply,
		},
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + Currency
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func countStatus(res []*clinic.Reservation, st clinic.Status) int {
	n := 0
	for _, r := range res {
		if r.Status == st {
			n++
		}
	}
	return n
}

func analyticsReply(q Query) Reply {
	snap := q.Snapshot
	var thisMonth []*clinic.Reservation
	for _, r := range snap.Reservations {
		if sameMonth(r.Date, q.Now) {
			thisMonth = append(thisMonth, r)
		}
	}
	completed := countStatus(snap.Reservations, clinic.StatusCompleted)
	return Reply{
		Content: fmt.Sprintf("Análisis de tu clínica: Ingresos totales: %s, Este mes: %s, Servicios completados: %d, Tasa de éxito: %d%%",
			money(reporting.TotalRevenue(snap.Reservations, snap.Services)),
			money(reporting.TotalRevenue(thisMonth, snap.Services)),
			completed,
			percent(completed, len(snap.Reservations))),
		Suggestions: []string{"¿Cuál es mi mejor servicio?", "Mostrar tendencias mensuales", "¿Cómo mejorar mis ingresos?"},
	}
}

func reservationsReply(q Query) Reply {
	switch {
	case strings.Contains(q.Message, "hoy"):
		return todayReply(q)
	case strings.Contains(q.Message, "semana"):
		return weekReply(q)
	case strings.Contains(q.Message, "pendientes"):
		return pendingReply(q)
	}
	res := q.Snapshot.Reservations
	return Reply{
		Content: fmt.Sprintf("Tienes %d reservas en total. %d confirmadas, %d pendientes.",
			len(res), countStatus(res, clinic.StatusConfirmed), countStatus(res, clinic.StatusPending)),
		Suggestions: []string{"¿Cuántas reservas tengo hoy?", "Mostrar reservas pendientes", "¿Cuál es mi horario más ocupado?"},
	}
}

type names struct {
	patients map[uuid.UUID]string
	services map[uuid.UUID]string
}

func nameIndex(snap *clinic.Snapshot) names {
	n := names{
		patients: make(map[uuid.UUID]string, len(snap.Patients)),
		services: make(map[uuid.UUID]string, len(snap.Services)),
	}
	for _, p := range snap.Patients {
		n.patients[p.ID] = p.Name
	}
	for _, s := range snap.Services {
		n.services[s.ID] = s.Name
	}
	return n
}

func todayReply(q Query) Reply {
	today := calendar.Day(q.Now)
	booked := calendar.Window(q.Snapshot.Reservations, today, today.AddDate(0, 0, 1))
	if len(booked) == 0 {
		return Reply{
			Content:     "No tienes reservas programadas para hoy. ¡Es un buen momento para ponerte al día con tareas administrativas!",
			Suggestions: []string{"¿Cuántas reservas tengo mañana?", "Mostrar reservas de la semana", "¿Cómo promocionar mis servicios?"},
		}
	}
	sort.SliceStable(booked, func(a, b int) bool { return booked[a].Time < booked[b].Time })

	idx := nameIndex(q.Snapshot)
	const shown = 3
	var lines []string
	for i, r := range booked {
		if i == shown {
			break
		}
		lines = append(lines, fmt.Sprintf("%s - %s a las %s", idx.patients[r.PatientID], idx.services[r.ServiceID], r.Time))
	}
	content := fmt.Sprintf("Hoy tienes %d reservas: %s", len(booked), strings.Join(lines, ", "))
	if len(booked) > shown {
		content += fmt.Sprintf(" y %d más", len(booked)-shown)
	}
	return Reply{
		Content:     content + ".",
		Suggestions: []string{"¿Cuánto voy a ganar hoy?", "Mostrar detalles de las citas", "¿Tengo tiempo libre hoy?"},
	}
}

var weekdayShort = [7]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}

func weekReply(q Query) Reply {
	cal := q.Calendar
	if cal == nil {
		cal = calendar.New(calendar.DefaultConfig())
	}
	start := cal.StartOfWeek(q.Now)
	booked := calendar.Window(q.Snapshot.Reservations, start, start.AddDate(0, 0, 7))

	var perDay [7]int
	for _, r := range booked {
		perDay[int(calendar.Day(r.Date).Sub(start).Hours()/24)]++
	}
	var parts []string
	for i, n := range perDay {
		if n == 0 {
			continue
		}
		wd := start.AddDate(0, 0, i).Weekday()
		parts = append(parts, fmt.Sprintf("%s: %d", weekdayShort[wd], n))
	}
	content := fmt.Sprintf("Esta semana tienes %d reservas programadas.", len(booked))
	if len(parts) > 0 {
		content += " Distribución: " + strings.Join(parts, ", ")
	}
	return Reply{
		Content:     content,
		Suggestions: []string{"¿Qué día es el más ocupado?", "¿Puedo agendar más citas?", "Mostrar ingresos de la semana"},
	}
}

func pendingReply(q Query) Reply {
	n := countStatus(q.Snapshot.Reservations, clinic.StatusPending)
	if n == 0 {
		return Reply{
			Content:     "¡Excelente! No tienes reservas pendientes de confirmación. Todas tus citas están organizadas.",
			Suggestions: []string{"¿Cuántas reservas confirmadas tengo?", "Mostrar próximas citas", "¿Cómo conseguir más reservas?"},
		}
	}
	return Reply{
		Content:     fmt.Sprintf("Tienes %d reservas pendientes de confirmación. Es importante contactar a estos pacientes pronto para confirmar sus citas.", n),
		Suggestions: []string{"¿Cómo contactar a estos pacientes?", "Mostrar detalles de reservas pendientes", "¿Cuánto tiempo tengo para confirmar?"},
	}
}

func patientsReply(q Query) Reply {
	patients := q.Snapshot.Patients
	newThisMonth, ages := 0, 0
	for _, p := range patients {
		if sameMonth(p.CreatedAt, q.Now) {
			newThisMonth++
		}
		ages += p.Age
	}
	avg := 0
	if len(patients) > 0 {
		avg = int(math.Round(float64(ages) / float64(len(patients))))
	}
	return Reply{
		Content: fmt.Sprintf("Tienes %d pacientes registrados. Este mes se registraron %d nuevos pacientes. El promedio de edad es %d años.",
			len(patients), newThisMonth, avg),
		Suggestions: []string{"¿Qué pacientes tienen citas pendientes?", "Mostrar pacientes más frecuentes", "¿Cómo contactar pacientes?"},
	}
}

func servicesReply(q Query) Reply {
	suggestions := []string{"¿Cuánto he ganado con este servicio?", "¿Qué servicios necesitan promoción?", "Mostrar precios de servicios"}
	ranking := reporting.ServiceRanking(q.Snapshot.Reservations, q.Snapshot.Services)
	if len(ranking) == 0 {
		return Reply{
			Content:     "Aún no tienes servicios registrados. Crea tu primer servicio para empezar a recibir reservas.",
			Suggestions: suggestions,
		}
	}
	top := ranking[0]
	content := fmt.Sprintf("Tu servicio más popular es %q con %d reservas (%s c/u).", top.Name, top.ReservationCount, money(top.Price))
	var rest []string
	for _, e := range ranking[1:] {
		if len(rest) == 2 {
			break
		}
		rest = append(rest, fmt.Sprintf("%s (%d)", e.Name, e.ReservationCount))
	}
	if len(rest) > 0 {
		content += " Le siguen: " + strings.Join(rest, ", ") + "."
	}
	return Reply{Content: content, Suggestions: suggestions}
}

var defaultReplies = []Reply{
	{
		Content:     "Puedo ayudarte con información sobre reservas, pacientes, servicios y estadísticas de tu clínica. ¿Qué te gustaría saber?",
		Suggestions: []string{"¿Cuántas reservas tengo hoy?", "¿Cuál es mi servicio más popular?", "Mostrar ingresos del mes"},
	},
	{
		Content:     "Estoy aquí para ayudarte a gestionar mejor tu clínica. Puedo darte información detallada sobre cualquier aspecto de tu negocio.",
		Suggestions: []string{"Mostrar estadísticas generales", "¿Cuál es mi mejor día de la semana?", "¿Cómo van mis ingresos?"},
	},
}

// defaultReply picks a fallback by message length so the same question
// always gets the same answer.
func defaultReply(q Query) Reply {
	r := defaultReplies[len([]rune(q.Message))%len(defaultReplies)]
	r.Suggestions = append([]string(nil), r.Suggestions...)
	return r
}
