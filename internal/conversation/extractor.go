package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atendeai/booking-engine/internal/availability"
	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/llm"
	"github.com/atendeai/booking-engine/pkg/logging"
)

// BookingDetails is the validated output of extraction: everything the
// commit engine needs to book.
type BookingDetails struct {
	ClientName       string
	ClientPhone      string
	ProfessionalID   uuid.UUID
	ProfessionalName string
	ServiceID        uuid.UUID
	ServiceName      string
	Date             string // "2006-01-02"
	StartTime        string // "HH:MM"
	DurationMinutes  int
	PriceCents       int
}

// ExtractionContext carries the dialogue snapshot extraction runs over.
type ExtractionContext struct {
	Conversation  *Conversation
	History       []Message // chronological
	Professionals []directory.Professional
	Services      []directory.Service
	Now           time.Time
}

// Extractor derives booking details from a dialogue. A nil result with a
// nil error means the dialogue is not ready to book; the conversation
// simply continues.
type Extractor interface {
	Extract(ctx context.Context, ec ExtractionContext) (*BookingDetails, error)
}

// summary markers: either an explicit confirmation phrase or at least
// three labeled summary fields.
var summaryFieldLabels = []string{"nome", "profissional", "serviço", "servico", "data", "hora"}

// LooksLikeSummary reports whether an assistant message presents a full
// booking summary.
func LooksLikeSummary(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "confirmado") {
		return true
	}
	count := 0
	for _, label := range summaryFieldLabels {
		if strings.Contains(lower, label+":") {
			count++
		}
	}
	return count >= 3
}

var openQuestionWords = []string{"qual", "informe", "escolha", "prefere", "gostaria"}

// isOpenQuestion reports whether the assistant message is still gathering
// information, in which case extraction must not proceed.
func isOpenQuestion(text string) bool {
	if LooksLikeSummary(text) {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "?") {
		return true
	}
	for _, word := range openQuestionWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

const summaryLookback = 5

// findSummary returns the most recent of the last `summaryLookback`
// assistant messages presenting a booking summary.
func findSummary(history []Message) *Message {
	seen := 0
	for i := len(history) - 1; i >= 0 && seen < summaryLookback; i-- {
		if history[i].Role != RoleAssistant {
			continue
		}
		seen++
		if LooksLikeSummary(history[i].Content) {
			return &history[i]
		}
	}
	return nil
}

// Pipeline is the single extraction entry point: a summary-anchored LLM
// extraction with a pattern-based fallback, behind one validation gate.
type Pipeline struct {
	primary  Extractor
	fallback Extractor
	logger   *logging.Logger
}

// NewPipeline wires the primary and fallback extractors.
func NewPipeline(primary, fallback Extractor, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{primary: primary, fallback: fallback, logger: logger}
}

var _ Extractor = (*Pipeline)(nil)

// Extract runs the extraction pipeline. Incomplete extractions are
// abandoned silently: the dialogue keeps going and no error reaches the
// end user.
func (p *Pipeline) Extract(ctx context.Context, ec ExtractionContext) (*BookingDetails, error) {
	last := latestAssistant(ec.History)
	if last == nil {
		return nil, nil
	}
	if isOpenQuestion(last.Content) {
		// Dialogue still in progress.
		return nil, nil
	}
	if findSummary(ec.History) == nil {
		return nil, nil
	}

	if p.primary != nil {
		details, err := p.primary.Extract(ctx, ec)
		if err != nil {
			p.logger.Warn("primary extraction failed, trying fallback", "error", err)
		} else if details != nil {
			return details, nil
		}
	}
	if p.fallback == nil {
		return nil, nil
	}
	return p.fallback.Extract(ctx, ec)
}

func latestAssistant(history []Message) *Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			return &history[i]
		}
	}
	return nil
}

// validate resolves the six extracted fields against real entities and
// normalizes formats. Returns nil when anything is missing or malformed.
func validate(raw rawDetails, ec ExtractionContext) *BookingDetails {
	prof := matchProfessional(raw.Professional, ec.Professionals)
	if prof == nil {
		return nil
	}
	svc := matchService(raw.Service, ec.Services)
	if svc == nil {
		return nil
	}

	if _, err := time.Parse("2006-01-02", raw.Date); err != nil {
		return nil
	}
	minutes, err := availability.ParseClock(raw.Time)
	if err != nil {
		return nil
	}

	name := strings.TrimSpace(raw.ClientName)
	if name == "" && ec.Conversation != nil {
		name = strings.TrimSpace(ec.Conversation.ContactName)
	}
	phone := directory.CanonicalPhone(raw.Phone)
	if phone == "" && ec.Conversation != nil {
		phone = directory.CanonicalPhone(ec.Conversation.Phone)
	}
	if name == "" || phone == "" {
		return nil
	}

	duration := svc.DurationMinutes
	if duration <= 0 {
		duration = directory.DefaultDurationMinutes
	}

	return &BookingDetails{
		ClientName:       name,
		ClientPhone:      phone,
		ProfessionalID:   prof.ID,
		ProfessionalName: prof.Name,
		ServiceID:        svc.ID,
		ServiceName:      svc.Name,
		Date:             raw.Date,
		StartTime:        availability.FormatClock(minutes),
		DurationMinutes:  duration,
		PriceCents:       svc.PriceCents,
	}
}

type rawDetails struct {
	ClientName   string `json:"client_name"`
	Phone        string `json:"phone"`
	Professional string `json:"professional"`
	Service      string `json:"service"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

func matchProfessional(name string, pros []directory.Professional) *directory.Professional {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	for i := range pros {
		if strings.ToLower(pros[i].Name) == name {
			return &pros[i]
		}
	}
	for i := range pros {
		lower := strings.ToLower(pros[i].Name)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return &pros[i]
		}
	}
	return nil
}

func matchService(name string, svcs []directory.Service) *directory.Service {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	for i := range svcs {
		lower := strings.ToLower(svcs[i].Name)
		if lower == name || strings.Contains(name, lower) || strings.Contains(lower, name) {
			return &svcs[i]
		}
	}
	return nil
}

// LLMExtractor runs a structured-extraction completion anchored on the
// booking summary message.
type LLMExtractor struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewLLMExtractor creates the summary-anchored extractor.
func NewLLMExtractor(client llm.Client, model string, logger *logging.Logger) *LLMExtractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMExtractor{client: client, model: model, logger: logger}
}

var _ Extractor = (*LLMExtractor)(nil)

const incompleteSentinel = "INCOMPLETE"

func (e *LLMExtractor) Extract(ctx context.Context, ec ExtractionContext) (*BookingDetails, error) {
	summary := findSummary(ec.History)
	if summary == nil {
		return nil, nil
	}

	var transcript strings.Builder
	transcript.WriteString("Resumo apresentado pelo atendente:\n")
	transcript.WriteString(summary.Content)
	transcript.WriteString("\n\nÚltimas mensagens do cliente:\n")
	for _, msg := range lastUserMessages(ec.History, 5) {
		transcript.WriteString("- " + msg.Content + "\n")
	}

	system := fmt.Sprintf(`Você extrai dados de agendamento de uma conversa.
%s
Responda SOMENTE com um objeto JSON neste formato exato, sem comentários:
{"client_name":"","phone":"","professional":"","service":"","date":"AAAA-MM-DD","time":"HH:MM"}
Use as datas da tabela acima para converter dias da semana em datas.
Se qualquer campo não estiver claro na conversa, responda somente a palavra %s.`,
		WeekdayTable(ec.Now), incompleteSentinel)

	text, err := e.client.Complete(ctx, llm.CompletionRequest{
		Model:       e.model,
		System:      system,
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: transcript.String()}},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: structured extraction: %w", err)
	}

	if strings.Contains(strings.ToUpper(text), incompleteSentinel) {
		return nil, nil
	}
	raw, ok := parseExtractionJSON(text)
	if !ok {
		e.logger.Warn("structured extraction returned unparseable payload")
		return nil, nil
	}
	if raw.Phone == "" && ec.Conversation != nil {
		raw.Phone = ec.Conversation.Phone
	}
	return validate(raw, ec), nil
}

func parseExtractionJSON(text string) (rawDetails, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return rawDetails{}, false
	}
	var raw rawDetails
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return rawDetails{}, false
	}
	return raw, true
}

func lastUserMessages(history []Message, limit int) []Message {
	var out []Message
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		if history[i].Role == RoleUser {
			out = append(out, history[i])
		}
	}
	// restore chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HeuristicExtractor derives booking fields via pattern search when no
// clean structured extraction is possible.
type HeuristicExtractor struct {
	logger *logging.Logger
}

// NewHeuristicExtractor creates the pattern-based fallback extractor.
func NewHeuristicExtractor(logger *logging.Logger) *HeuristicExtractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &HeuristicExtractor{logger: logger}
}

var _ Extractor = (*HeuristicExtractor)(nil)

var (
	clockRE    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	bareHourRE = regexp.MustCompile(`(?:^|\s)(?:às|as)\s+(\d{1,2})\b|\b(\d{1,2})\s*h(?:oras?)?\b`)
	nameRE     = regexp.MustCompile(`\p{Lu}[\p{Ll}]+(?:\s+\p{Lu}[\p{Ll}]+)?`)
)

// Domain words the name heuristic must never mistake for a person.
var nameStopWords = map[string]struct{}{
	"sim": {}, "ok": {}, "olá": {}, "ola": {}, "oi": {},
	"bom": {}, "boa": {}, "dia": {}, "tarde": {}, "noite": {},
	"quero": {}, "confirmo": {}, "confirmar": {}, "agendar": {},
	"hoje": {}, "amanhã": {}, "amanha": {}, "obrigado": {}, "obrigada": {},
	"meu": {}, "nome": {}, "horário": {}, "horario": {}, "para": {},
	"domingo": {}, "segunda": {}, "terça": {}, "terca": {}, "quarta": {},
	"quinta": {}, "sexta": {}, "sábado": {}, "sabado": {},
}

func (e *HeuristicExtractor) Extract(_ context.Context, ec ExtractionContext) (*BookingDetails, error) {
	last := latestAssistant(ec.History)
	if last == nil {
		return nil, nil
	}

	// Search text: assistant's last message plus recent user turns.
	var parts []string
	parts = append(parts, last.Content)
	for _, msg := range lastUserMessages(ec.History, 6) {
		parts = append(parts, msg.Content)
	}
	haystack := strings.Join(parts, "\n")

	raw := rawDetails{}

	if m := clockRE.FindStringSubmatch(haystack); m != nil {
		hour, _ := strconv.Atoi(m[1])
		raw.Time = fmt.Sprintf("%02d:%s", hour, m[2])
	} else if m := bareHourRE.FindStringSubmatch(strings.ToLower(haystack)); m != nil {
		hourStr := m[1]
		if hourStr == "" {
			hourStr = m[2]
		}
		if hour, err := strconv.Atoi(hourStr); err == nil && hour >= 0 && hour <= 23 {
			raw.Time = fmt.Sprintf("%02d:00", hour)
		}
	}

	if date, ok := FindDayWord(haystack, ec.Now); ok {
		raw.Date = date.Format("2006-01-02")
	}

	if prof := findProfessionalInText(haystack, ec.Professionals); prof != nil {
		raw.Professional = prof.Name
	}

	if svc := findServiceInText(haystack, ec.Services); svc != nil {
		raw.Service = svc.Name
	} else if len(ec.Services) > 0 {
		raw.Service = ec.Services[0].Name
	}

	raw.ClientName = e.findClientName(ec, haystack)
	if ec.Conversation != nil {
		raw.Phone = ec.Conversation.Phone
	}

	details := validate(raw, ec)
	if details == nil {
		e.logger.Debug("heuristic extraction incomplete, dialogue continues")
	}
	return details, nil
}

func findProfessionalInText(text string, pros []directory.Professional) *directory.Professional {
	lower := strings.ToLower(text)
	for i := range pros {
		if strings.Contains(lower, strings.ToLower(pros[i].Name)) {
			return &pros[i]
		}
	}
	return nil
}

func findServiceInText(text string, svcs []directory.Service) *directory.Service {
	lower := strings.ToLower(text)
	for i := range svcs {
		if strings.Contains(lower, strings.ToLower(svcs[i].Name)) {
			return &svcs[i]
		}
	}
	return nil
}

func (e *HeuristicExtractor) findClientName(ec ExtractionContext, haystack string) string {
	excluded := make(map[string]struct{}, len(nameStopWords))
	for w := range nameStopWords {
		excluded[w] = struct{}{}
	}
	for _, p := range ec.Professionals {
		for _, token := range strings.Fields(strings.ToLower(p.Name)) {
			excluded[token] = struct{}{}
		}
	}
	for _, s := range ec.Services {
		for _, token := range strings.Fields(strings.ToLower(s.Name)) {
			excluded[token] = struct{}{}
		}
	}

	// Prefer names mentioned by the user, most recent first.
	for i := len(ec.History) - 1; i >= 0; i-- {
		if ec.History[i].Role != RoleUser {
			continue
		}
		if name := firstCleanName(ec.History[i].Content, excluded); name != "" {
			return name
		}
	}
	if name := firstCleanName(haystack, excluded); name != "" {
		return name
	}
	if ec.Conversation != nil {
		return strings.TrimSpace(ec.Conversation.ContactName)
	}
	return ""
}

func firstCleanName(text string, excluded map[string]struct{}) string {
	for _, candidate := range nameRE.FindAllString(text, -1) {
		clean := true
		for _, token := range strings.Fields(strings.ToLower(candidate)) {
			if _, bad := excluded[token]; bad {
				clean = false
				break
			}
		}
		if clean {
			return candidate
		}
	}
	return ""
}
