// Package prompt is the one-time modal offering login or a demo run.
package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrUnknownTarget = errors.New("unknown click target")

// Target is the element a click landed on.
type Target string

const (
	Backdrop    Target = "backdrop"
	Body        Target = "body"
	LoginButton Target = "login"
	DemoButton  Target = "demo"
)

// ParseTarget validates a click target name.
func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case Backdrop, Body, LoginButton, DemoButton:
		return t, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownTarget)
}

// Prompt is visible until dismissed; once dismissed it never comes back.
type Prompt struct {
	mu      sync.Mutex
	visible bool
	logins  int
	logger  *slog.Logger
}

// New creates a visible prompt.
func New() *Prompt {
	return &Prompt{visible: true, logger: slog.With("component", "prompt")}
}

// Visible reports whether the prompt is shown.
func (p *Prompt) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Login records the login intent. No sign-in flow exists yet.
func (p *Prompt) Login() {
	p.mu.Lock()
	p.logins++
	p.mu.Unlock()
	p.logger.Info("OAuth login clicked")
}

// Dismiss hides the prompt for the rest of the page's life.
func (p *Prompt) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible {
		p.visible = false
		p.logger.Debug("Prompt dismissed")
	}
}

// Click handles a click on t. Clicks inside the popup body stay there; only
// the backdrop and the demo button close it. Clicks while hidden are ignored.
func (p *Prompt) Click(t Target) error {
	if _, err := ParseTarget(string(t)); err != nil {
		return err
	}
	if !p.Visible() {
		return nil
	}

	switch t {
	case Backdrop, DemoButton:
		p.Dismiss()
	case LoginButton:
		p.Login()
	case Body:
	}
	return nil
}

// View is the prompt's content.
type View struct {
	Visible     bool   `json:"visible"`
	Title       string `json:"title"`
	LoginLabel  string `json:"loginLabel"`
	PrivacyText string `json:"privacyText"`
	Divider     string `json:"divider"`
	DemoLabel   string `json:"demoLabel"`
	// LoginAttempts counts login clicks; the page explains sign-in is unavailable once it is non-zero.
	LoginAttempts int    `json:"loginAttempts"`
	LoginNote     string `json:"loginNote,omitempty"`
}

// View renders the prompt.
func (p *Prompt) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		Visible:       p.visible,
		Title:         "Connect to iNaturalist",
		LoginLabel:    "🔐 Login with iNaturalist",
		PrivacyText:   "Your login credentials and observation data are private. Everything stays cached locally in your browser only.",
		Divider:       "Or try a demo",
		DemoLabel:     "Run Demo",
		LoginAttempts: p.logins,
	}
	if p.logins > 0 {
		v.LoginNote = "iNaturalist sign-in is not available yet. Try the demo instead."
	}
	return v
}
