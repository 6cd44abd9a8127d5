package executor

import (
	"strings"

	"github.com/nbenliogludev/softlight-agent/internal/browser"
)

// Login detection is heuristic on purpose: the agent runs against
// arbitrary sites and only needs to notice "this looks like a login
// wall", not to classify it precisely. False negatives just mean the
// operator pauses the run by hand.

var loginPathFragments = []string{
	"/login", "/log-in", "/signin", "/sign-in", "/sign_in",
	"/auth", "/session/new", "/account/login", "/oauth", "/sso",
}

var loginKeywords = []string{
	"sign in to continue",
	"log in to continue",
	"welcome back",
	"forgot password",
	"continue with google",
	"continue with email",
	"don't have an account",
}

// AuthRequired reports whether the page looks like a login wall:
// a known auth URL shape, login-prompt copy, or an email+password form.
func AuthRequired(snap *browser.PageSnapshot, pageURL string) bool {
	lowerURL := strings.ToLower(pageURL)
	for _, frag := range loginPathFragments {
		if strings.Contains(lowerURL, frag) {
			return true
		}
	}

	lowerTree := strings.ToLower(snap.Tree)
	for _, kw := range loginKeywords {
		if strings.Contains(lowerTree, kw) {
			return true
		}
	}

	return hasCredentialForm(snap)
}

// hasCredentialForm looks for a visible password field alongside an
// email or username field, the shape virtually every login form takes.
func hasCredentialForm(snap *browser.PageSnapshot) bool {
	var password, identity bool
	for _, el := range snap.Elements {
		if el.Role != "input" || !el.Visible {
			continue
		}
		switch el.Kind {
		case "password":
			password = true
		case "email", "text", "tel":
			label := strings.ToLower(el.Label)
			if el.Kind == "email" ||
				strings.Contains(label, "email") ||
				strings.Contains(label, "username") ||
				strings.Contains(label, "phone") {
				identity = true
			}
		}
	}
	return password && identity
}

var consentLabels = []string{
	"accept all", "accept cookies", "allow all", "i agree",
	"agree", "accept", "got it", "ok, got it",
}

// consentButton finds a cookie-consent dismissal button if one is on
// screen. Consent overlays routinely swallow the first click or keypress,
// so they are cleared before fills.
func consentButton(snap *browser.PageSnapshot) (browser.Element, bool) {
	for _, el := range snap.Elements {
		if el.Role != "button" || !el.Visible {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(el.Label))
		for _, want := range consentLabels {
			if label == want {
				return el, true
			}
		}
	}
	return browser.Element{}, false
}
