// Package prompt builds the instructions sent to the completion model for
// one bid document, in template-reproduction or free-generation mode.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"tenderprep/internal/template"
)

// Mode selects how the document is produced.
type Mode string

const (
	ModeTemplate Mode = "template"
	ModeFree     Mode = "free"
)

// Default character budgets for the embedded texts.
const (
	DefaultTemplateBudget = 30000
	DefaultContextBudget  = 8000
)

// TenderInfo describes the procurement the bid is for.
type TenderInfo struct {
	Title           string `json:"title"`
	ProcurementType string `json:"procurement_type"`
}

// ProcurementLabel names the procurement regime.
func (t *TenderInfo) ProcurementLabel() string {
	switch t.ProcurementType {
	case "44-fz":
		return "44-ФЗ"
	case "223-fz":
		return "223-ФЗ"
	default:
		return "Коммерческая закупка"
	}
}

// Input is everything the composer merges into the prompt.
type Input struct {
	DocumentName   string
	Template       template.Decision
	Participant    *Participant
	Amount         *BidAmount
	Tender         *TenderInfo
	TenderContext  string
	Date           time.Time
	TemplateBudget int
	ContextBudget  int
}

// Prompt is a composed request.
type Prompt struct {
	System string
	User   string
	Mode   Mode
}

const systemBase = "Ты генерируешь тендерные документы. Отвечай ТОЛЬКО валидным JSON."

// Compose builds the prompt. Template mode is used iff the decision found a
// template.
func Compose(in Input) Prompt {
	if in.TemplateBudget <= 0 {
		in.TemplateBudget = DefaultTemplateBudget
	}
	if in.ContextBudget <= 0 {
		in.ContextBudget = DefaultContextBudget
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}

	var sb strings.Builder
	mode := ModeFree
	system := systemBase + " Не выдумывай сведения, которых нет во входных данных."

	if in.Template.Found {
		mode = ModeTemplate
		system = systemBase + " Воспроизводи шаблон дословно, заполняя только пропуски."
		fmt.Fprintf(&sb, "Ты — эксперт по подготовке тендерной документации в РФ. Заполни документ \"%s\" строго по шаблону из документации закупки.\n\n", in.DocumentName)
		fmt.Fprintf(&sb, "ШАБЛОН ДОКУМЕНТА (файлы: %s):\n<<<\n%s\n>>>\n\n", strings.Join(in.Template.MatchedFiles, ", "), Truncate(in.Template.Text, in.TemplateBudget))
	} else {
		fmt.Fprintf(&sb, "Ты — эксперт по подготовке тендерной документации в РФ. Сгенерируй заполненный документ \"%s\" для подачи заявки на участие в закупке.\n", in.DocumentName)
		sb.WriteString("Шаблон этого документа в документации закупки не найден, используй стандартную форму.\n\n")
	}

	writeParticipant(&sb, in.Participant)
	writeBidAmount(&sb, in.Amount)
	writeTender(&sb, in.Tender, Truncate(strings.TrimSpace(in.TenderContext), in.ContextBudget))

	if mode == ModeTemplate {
		sb.WriteString(templateRules)
	} else {
		sb.WriteString(freeRules)
	}
	fmt.Fprintf(&sb, "Дата документа: %s.\n\n", FormatDate(in.Date))
	sb.WriteString(outputContract)

	return Prompt{System: system, User: sb.String(), Mode: mode}
}

func writeTender(sb *strings.Builder, t *TenderInfo, context string) {
	if t == nil && context == "" {
		return
	}
	sb.WriteString("\nДАННЫЕ ТЕНДЕРА:\n")
	if t != nil {
		if t.Title != "" {
			sb.WriteString("- Название: " + t.Title + "\n")
		}
		sb.WriteString("- Тип закупки: " + t.ProcurementLabel() + "\n")
	}
	if context != "" {
		sb.WriteString("\nКОНТЕКСТ ЗАКУПКИ:\n" + context + "\n")
	}
}

const templateRules = `
ПРАВИЛА ЗАПОЛНЕНИЯ:
1. Воспроизведи структуру, порядок разделов и формулировки шаблона ТОЧНО, слово в слово.
2. Заполняй только пустые места: пропуски вида "____", поля в квадратных скобках, пометки "указать", "указывается участником", пустые ячейки таблиц.
3. Не добавляй, не удаляй и не переставляй разделы, пункты и строки таблиц.
4. Если для поля нет данных участника, оставь на его месте "[___]". Ничего не выдумывай.
5. Таблицы передавай строками с разделителем "|", одна строка таблицы на одной строке текста.
`

const freeRules = `
ТРЕБОВАНИЯ:
1. Сгенерируй полный текст документа, максимально приближённый к стандартным формам тендерной документации.
2. Подставь все известные реквизиты участника в соответствующие поля.
3. Где данные не указаны, поставь "[___]" как плейсхолдер для ручного заполнения.
4. Не выдумывай сведения, которых нет в данных участника и контексте закупки.
5. Используй деловой стиль, соответствующий тендерной документации РФ.
6. Добавь место для подписи и печати в конце документа.
7. Таблицы передавай строками с разделителем "|", одна строка таблицы на одной строке текста.
`

const outputContract = `Ответь ТОЛЬКО содержимым документа в формате JSON:
{
  "title": "Точное название документа",
  "sections": [
    {
      "heading": "Заголовок секции (если есть, иначе пустая строка)",
      "content": "Текст секции. Используй \n для переносов строк."
    }
  ],
  "signature_block": "Блок подписи (должность, ФИО, место для подписи и печати)"
}

Без markdown, без пояснений вне JSON.`

// Truncate cuts s to at most limit runes and marks the cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "\n[... текст сокращён ...]"
		}
		n++
	}
	return s
}

var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// FormatDate renders a date the way it is written on Russian forms:
// «17» октября 2026 г.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("«%02d» %s %d г.", t.Day(), monthsGenitive[t.Month()-1], t.Year())
}
