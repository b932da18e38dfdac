package report

import "github.com/0x6d61/wavs/internal/store"

// Severity ranks a finding category.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the upper-case severity label.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityLow:
		return "LOW"
	default:
		return "INFO"
	}
}

// CategoryInfo is the human-readable description of a finding category.
type CategoryInfo struct {
	Title       string
	Severity    Severity
	Description string
	Mitigation  []string
	Reference   string
}

var categories = map[string]CategoryInfo{
	store.CategorySQLInjection: {
		Title:       "SQL Injection",
		Severity:    SeverityCritical,
		Description: "User input reaches a SQL query unescaped; the database reported a syntax error for an injected quote.",
		Mitigation: []string{
			"Use parameterized queries or prepared statements.",
			"Validate input against an allowlist.",
			"Hide database errors from responses.",
		},
		Reference: "https://owasp.org/www-community/attacks/SQL_Injection",
	},
	store.CategorySQLInjectionBlind: {
		Title:       "Blind SQL Injection (time based)",
		Severity:    SeverityCritical,
		Description: "A payload that asks the database to sleep delayed the response well past the baseline.",
		Mitigation: []string{
			"Use parameterized queries or prepared statements.",
			"Run the application with a least-privilege database account.",
		},
		Reference: "https://owasp.org/www-community/attacks/Blind_SQL_Injection",
	},
	store.CategoryLFI: {
		Title:       "Local File Inclusion",
		Severity:    SeverityHigh,
		Description: "A path traversal payload returned the contents of a system file.",
		Mitigation: []string{
			"Map user input to a fixed set of files instead of using it as a path.",
			"Reject path separators and dot segments.",
		},
		Reference: "https://owasp.org/www-project-web-security-testing-guide/latest/4-Web_Application_Security_Testing/07-Input_Validation_Testing/11.1-Testing_for_Local_File_Inclusion",
	},
	store.CategoryXSSReflected: {
		Title:       "Reflected Cross-Site Scripting",
		Severity:    SeverityMedium,
		Description: "A script payload was echoed back unescaped in the response to the same request.",
		Mitigation: []string{
			"Encode output for the HTML context it is written into.",
			"Set a restrictive Content-Security-Policy.",
		},
		Reference: "https://owasp.org/www-community/attacks/xss/",
	},
	store.CategoryXSSStored: {
		Title:       "Stored Cross-Site Scripting",
		Severity:    SeverityHigh,
		Description: "A script payload was persisted and rendered unescaped on a later page view.",
		Mitigation: []string{
			"Encode stored data when rendering it.",
			"Sanitize rich text with an allowlist-based HTML sanitizer.",
		},
		Reference: "https://owasp.org/www-community/attacks/xss/",
	},
	store.CategoryCSRF: {
		Title:       "Cross-Site Request Forgery",
		Severity:    SeverityMedium,
		Description: "A state-changing POST form carries no anti-CSRF token.",
		Mitigation: []string{
			"Add a per-session anti-CSRF token to every state-changing form.",
			"Set SameSite on session cookies.",
		},
		Reference: "https://owasp.org/www-community/attacks/csrf",
	},
	store.CategoryOSInjection: {
		Title:       "OS Command Injection",
		Severity:    SeverityCritical,
		Description: "A chained shell command ran on the server and its output appeared in the response.",
		Mitigation: []string{
			"Avoid invoking a shell; call programs with an argument vector.",
			"Validate input against an allowlist.",
		},
		Reference: "https://owasp.org/www-community/attacks/Command_Injection",
	},
	store.CategoryInfoDisclosure: {
		Title:       "Information Disclosure",
		Severity:    SeverityLow,
		Description: "A diagnostic, backup or configuration resource is publicly reachable.",
		Mitigation: []string{
			"Remove debug and backup files from the web root.",
			"Restrict access to administrative resources.",
		},
		Reference: "https://owasp.org/www-project-web-security-testing-guide/latest/4-Web_Application_Security_Testing/01-Information_Gathering/",
	},
}

// Category returns the description of name. Unknown categories get their
// own name as title and INFO severity.
func Category(name string) CategoryInfo {
	if info, ok := categories[name]; ok {
		return info
	}
	return CategoryInfo{Title: name, Severity: SeverityInfo}
}
