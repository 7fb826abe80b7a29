package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

const draftSystemPrompt = "You are an expert B2B sales copywriter who writes concise, personalized cold emails that get replies."

// AnthropicConfig configures the model-backed drafter.
type AnthropicConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Offer       string
}

// AnthropicDrafter drafts outreach with the Anthropic Messages API.
type AnthropicDrafter struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicDrafter creates a drafter.
func NewAnthropicDrafter(client anthropic.Client, cfg AnthropicConfig) *AnthropicDrafter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	return &AnthropicDrafter{client: client, cfg: cfg}
}

// Name implements Drafter.
func (d *AnthropicDrafter) Name() string { return NameAnthropic }

// Draft implements Drafter.
func (d *AnthropicDrafter) Draft(ctx context.Context, lead model.Lead) (string, error) {
	temp := d.cfg.Temperature
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.cfg.Model,
		MaxTokens:   d.cfg.MaxTokens,
		System:      anthropic.CachedSystemPrompt(draftSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: d.prompt(lead)}},
		Temperature: &temp,
	})
	if err != nil {
		return "", resilience.Classify(NameAnthropic, "draft", anthropic.StatusCode(err), err)
	}
	resp.Usage.LogCost(d.cfg.Model, lead.Domain)

	subject, body := parseDraft(resp.Text())
	if body == "" {
		return "", resilience.Permanent(NameAnthropic, "draft", 0, ErrEmptyDraft)
	}
	return ensureContext(formatEmail(subject, body), lead), nil
}

func (d *AnthropicDrafter) prompt(lead model.Lead) string {
	score := 0
	if lead.ICPScore != nil {
		score = *lead.ICPScore
	}
	var b strings.Builder
	b.WriteString("Write a personalized cold outreach email for the following lead.\n\n")
	b.WriteString("LEAD INFORMATION:\n")
	fmt.Fprintf(&b, "- Name: %s\n", lead.ContactName)
	fmt.Fprintf(&b, "- Title: %s\n", orDefault(lead.Title, "Unknown"))
	fmt.Fprintf(&b, "- Company: %s\n", companyName(lead))
	fmt.Fprintf(&b, "- Industry: %s\n", orDefault(lead.Company.Industry, "B2B SaaS"))
	fmt.Fprintf(&b, "- Funding Stage: %s\n", fundingStage(lead))
	fmt.Fprintf(&b, "- ICP Score: %d/100\n\n", score)
	b.WriteString("OUR OFFER:\n")
	b.WriteString(d.cfg.Offer)
	b.WriteString("\n\nEMAIL RULES:\n")
	b.WriteString("- Subject line: short, curiosity-driven, no clickbait\n")
	b.WriteString("- Opening: reference their role and company by name\n")
	b.WriteString("- Mention their funding stage\n")
	b.WriteString("- CTA: ask for a 20-minute call, keep it low pressure\n")
	b.WriteString("- Tone: confident, peer-to-peer, not salesy\n")
	b.WriteString("- Length: 5-7 sentences max, no em-dashes\n\n")
	b.WriteString("Respond in this exact format:\nSUBJECT: <subject line here>\nBODY: <email body here>")
	return b.String()
}

// parseDraft reads the SUBJECT:/BODY: reply format. Lines after BODY:
// belong to the body.
func parseDraft(raw string) (subject, body string) {
	var lines []string
	inBody := false
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		switch {
		case !inBody && strings.HasPrefix(line, "SUBJECT:"):
			subject = strings.TrimSpace(strings.TrimPrefix(line, "SUBJECT:"))
		case !inBody && strings.HasPrefix(line, "BODY:"):
			inBody = true
			if first := strings.TrimSpace(strings.TrimPrefix(line, "BODY:")); first != "" {
				lines = append(lines, first)
			}
		case inBody:
			lines = append(lines, line)
		}
	}
	return subject, strings.TrimSpace(strings.Join(lines, "\n"))
}

func formatEmail(subject, body string) string {
	if subject == "" {
		return body
	}
	return "Subject: " + subject + "\n\n" + body
}

// ensureContext appends a reference line when the model left out the
// role, company or funding stage.
func ensureContext(email string, lead model.Lead) string {
	lower := strings.ToLower(email)
	for _, want := range []string{lead.Title, companyName(lead), lead.Company.FundingStage} {
		if want != "" && !strings.Contains(lower, strings.ToLower(want)) {
			return email + "\n\n" + contextLine(lead)
		}
	}
	return email
}

func contextLine(lead model.Lead) string {
	return fmt.Sprintf("Re: %s at %s (%s)", orDefault(lead.Title, "your role"), companyName(lead), fundingStage(lead))
}

// TemplateDrafter writes deterministic outreach without a model call.
type TemplateDrafter struct {
	offer string
}

// NewTemplateDrafter creates a template drafter with the given pitch.
func NewTemplateDrafter(offer string) *TemplateDrafter {
	return &TemplateDrafter{offer: offer}
}

// Name implements Drafter.
func (d *TemplateDrafter) Name() string { return NameTemplate }

// Draft implements Drafter.
func (d *TemplateDrafter) Draft(ctx context.Context, lead model.Lead) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "template: draft")
	}
	company := companyName(lead)
	stage := fundingStage(lead)
	role := orDefault(lead.Title, "a leader")

	subject := fmt.Sprintf("Pipeline for %s at %s", stage, company)
	body := fmt.Sprintf(
		"Hi %s,\n\nAs %s at %s, you are scaling a %s team where every week of prospecting counts. %s\n\n"+
			"Sales teams at Series B-G companies use us to keep their calendars full. "+
			"Would a 20-minute call next week be worth it?\n\nBest,\nThe Leadgen Team",
		firstName(lead.ContactName), role, company, stage, d.offer,
	)
	return formatEmail(subject, body), nil
}

func companyName(lead model.Lead) string {
	if lead.Company.Name != "" {
		return lead.Company.Name
	}
	return lead.Domain
}

func fundingStage(lead model.Lead) string {
	return orDefault(lead.Company.FundingStage, "growth stage")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
