package prompt

import (
	"strings"

	"tenderprep/internal/money"
)

// Placeholder marks every slot the generator has no data for.
const Placeholder = "[___]"

// Participant is the bidder's company card. Every field is optional.
type Participant struct {
	ParticipantType  string `json:"participant_type,omitempty" yaml:"participant_type"`
	FullName         string `json:"full_name,omitempty" yaml:"full_name"`
	ShortName        string `json:"short_name,omitempty" yaml:"short_name"`
	INN              string `json:"inn,omitempty" yaml:"inn"`
	KPP              string `json:"kpp,omitempty" yaml:"kpp"`
	OGRN             string `json:"ogrn,omitempty" yaml:"ogrn"`
	OKPO             string `json:"okpo,omitempty" yaml:"okpo"`
	OKATO            string `json:"okato,omitempty" yaml:"okato"`
	OKTMO            string `json:"oktmo,omitempty" yaml:"oktmo"`
	OKVED            string `json:"okved,omitempty" yaml:"okved"`
	LegalAddress     string `json:"legal_address,omitempty" yaml:"legal_address"`
	ActualAddress    string `json:"actual_address,omitempty" yaml:"actual_address"`
	DirectorName     string `json:"director_name,omitempty" yaml:"director_name"`
	DirectorPosition string `json:"director_position,omitempty" yaml:"director_position"`
	Phone            string `json:"phone,omitempty" yaml:"phone"`
	Email            string `json:"email,omitempty" yaml:"email"`
	BankName         string `json:"bank_name,omitempty" yaml:"bank_name"`
	BankBIK          string `json:"bank_bik,omitempty" yaml:"bank_bik"`
	BankAccount      string `json:"bank_account,omitempty" yaml:"bank_account"`
	BankCorrAccount  string `json:"bank_corr_account,omitempty" yaml:"bank_corr_account"`
	BankINN          string `json:"bank_inn,omitempty" yaml:"bank_inn"`
	BankKPP          string `json:"bank_kpp,omitempty" yaml:"bank_kpp"`
	VATRate          string `json:"vat_rate,omitempty" yaml:"vat_rate"`
	TaxSystem        string `json:"tax_system,omitempty" yaml:"tax_system"`
}

// TypeLabel names the participant's legal form.
func (p *Participant) TypeLabel() string {
	switch p.ParticipantType {
	case "ip":
		return "Индивидуальный предприниматель"
	case "self_employed":
		return "Самозанятый"
	default:
		return "Юридическое лицо"
	}
}

type field struct {
	label string
	value string
}

// fields lists every participant field in prompt order. The list never
// shrinks: absent values are rendered as the placeholder by the caller.
func (p *Participant) fields() []field {
	vat := ""
	if p.VATRate != "" {
		vat = money.VATRate(p.VATRate).Label()
	}
	return []field{
		{"Тип участника", p.TypeLabel()},
		{"Полное наименование", p.FullName},
		{"Сокращённое наименование", p.ShortName},
		{"ИНН", p.INN},
		{"КПП", p.KPP},
		{"ОГРН/ОГРНИП", p.OGRN},
		{"ОКПО", p.OKPO},
		{"ОКАТО", p.OKATO},
		{"ОКТМО", p.OKTMO},
		{"ОКВЭД", p.OKVED},
		{"Юридический адрес", p.LegalAddress},
		{"Фактический адрес", p.ActualAddress},
		{"Руководитель (ФИО)", p.DirectorName},
		{"Должность руководителя", p.DirectorPosition},
		{"Телефон", p.Phone},
		{"Email", p.Email},
		{"Банк", p.BankName},
		{"БИК", p.BankBIK},
		{"Расчётный счёт", p.BankAccount},
		{"Корреспондентский счёт", p.BankCorrAccount},
		{"ИНН банка", p.BankINN},
		{"КПП банка", p.BankKPP},
		{"Ставка НДС", vat},
		{"Система налогообложения", p.TaxSystem},
	}
}

func writeParticipant(sb *strings.Builder, p *Participant) {
	if p == nil {
		p = &Participant{}
	}
	sb.WriteString("ДАННЫЕ УЧАСТНИКА:\n")
	for _, f := range p.fields() {
		v := strings.TrimSpace(f.value)
		if v == "" {
			v = Placeholder
		}
		sb.WriteString("- " + f.label + ": " + v + "\n")
	}
}

// BidAmount carries the price figures of the bid. Only Amount is required;
// the rest is derived when missing.
type BidAmount struct {
	Amount         float64 `json:"amount"`
	VATRate        string  `json:"vat_rate,omitempty"`
	VATAmount      float64 `json:"vat_amount,omitempty"`
	TotalWithVAT   float64 `json:"total_with_vat,omitempty"`
	AmountWords    string  `json:"amount_words,omitempty"`
	VATAmountWords string  `json:"vat_amount_words,omitempty"`
}

// Complete fills derived figures. VAT is included in Amount.
func (b *BidAmount) Complete() {
	if b.Amount <= 0 {
		return
	}
	br := money.Compute(money.FromRubles(b.Amount), money.VATRate(b.VATRate))
	b.VATRate = string(br.Rate)
	if b.VATAmount == 0 {
		b.VATAmount = br.VAT.Rubles()
	}
	if b.TotalWithVAT == 0 {
		b.TotalWithVAT = b.Amount
	}
	if b.AmountWords == "" {
		b.AmountWords = br.AmountWords
	}
	if b.VATAmountWords == "" {
		b.VATAmountWords = br.VATAmountWords
	}
}

func writeBidAmount(sb *strings.Builder, b *BidAmount) {
	if b == nil || b.Amount <= 0 {
		return
	}
	c := *b
	c.Complete()
	rate := money.VATRate(c.VATRate)

	sb.WriteString("\nЦЕНА ЗАЯВКИ:\n")
	sb.WriteString("- Цена заявки: " + money.Format(money.FromRubles(c.TotalWithVAT)) + " (" + c.AmountWords + ")\n")
	if _, ok := rate.Percent(); ok && c.VATAmount > 0 {
		sb.WriteString("- В том числе НДС " + rate.Label() + ": " + money.Format(money.FromRubles(c.VATAmount)))
		if c.VATAmountWords != "" {
			sb.WriteString(" (" + c.VATAmountWords + ")")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("- НДС: " + rate.Label() + "\n")
	}
}
