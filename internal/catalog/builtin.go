// ABOUTME: The shipped default rule set covering all eight scan phases.
// ABOUTME: Keeps local scanning useful offline, before any signature sync.

package catalog

import "github.com/sigil-dev/sigil/internal/types"

// Well-known provenance rule IDs the scanner raises structurally during the
// tree walk (binary sniffing, file size, VCS presence) rather than by
// pattern matching. Their catalog entries supply severity and weight.
const (
	RuleHiddenFile         = "PROV-001"
	RuleBinaryFile         = "PROV-002"
	RuleSuspiciousFilename = "PROV-003"
	RuleLargeFile          = "PROV-004"
	RuleNoVCSHistory       = "PROV-006"
)

// Builtin returns a catalog holding the shipped default rules. The rule set
// is validated like any other catalog; a malformed builtin is a programming
// error surfaced at startup, never mid-scan.
func Builtin() (*Catalog, error) {
	return New(builtinRules())
}

func builtinRules() []types.Rule {
	rules := []types.Rule{}
	rules = append(rules, installHookRules()...)
	rules = append(rules, codePatternRules()...)
	rules = append(rules, networkExfilRules()...)
	rules = append(rules, credentialRules()...)
	rules = append(rules, obfuscationRules()...)
	rules = append(rules, provenanceRules()...)
	rules = append(rules, promptInjectionRules()...)
	rules = append(rules, skillSecurityRules()...)
	return rules
}

// Install hooks: code that executes at install time, before review.
func installHookRules() []types.Rule {
	return []types.Rule{
		{
			ID: "INSTALL-001", Phase: types.PhaseInstallHooks, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `cmdclass`,
			FileNames:   []string{"setup.py", "setup.cfg"},
			Description: "setup.py cmdclass override (code runs at install time)",
		},
		{
			ID: "INSTALL-002", Phase: types.PhaseInstallHooks, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `(?i)(pre_install|post_install|install_scripts)`,
			FileNames:   []string{"setup.py", "setup.cfg"},
			Description: "setup.py custom install hook",
		},
		{
			ID: "INSTALL-003", Phase: types.PhaseInstallHooks, Severity: types.SeverityCritical,
			Matcher: types.MatcherManifest, Pattern: `scripts.preinstall`,
			FileNames:   []string{"package.json"},
			Description: "npm lifecycle script (runs automatically on install)",
		},
		{
			ID: "INSTALL-003b", Phase: types.PhaseInstallHooks, Severity: types.SeverityCritical,
			Matcher: types.MatcherManifest, Pattern: `scripts.postinstall`,
			FileNames:   []string{"package.json"},
			Description: "npm lifecycle script (runs automatically on install)",
		},
		{
			ID: "INSTALL-004", Phase: types.PhaseInstallHooks, Severity: types.SeverityHigh,
			Matcher: types.MatcherManifest, Pattern: `scripts.prepare`,
			FileNames:   []string{"package.json"},
			Description: "npm publish lifecycle script",
		},
		{
			ID: "INSTALL-005", Phase: types.PhaseInstallHooks, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `^install\s*:`,
			FileNames:   []string{"Makefile", "makefile"},
			Description: "Makefile install target",
		},
		{
			ID: "INSTALL-007", Phase: types.PhaseInstallHooks, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `\[tool\.setuptools\.cmdclass\]`,
			FileNames:   []string{"pyproject.toml"},
			Description: "pyproject.toml cmdclass override",
		},
		{
			ID: "INSTALL-008", Phase: types.PhaseInstallHooks, Severity: types.SeverityLow,
			Matcher: types.MatcherText, Pattern: `build-backend\s*=`,
			FileNames:   []string{"pyproject.toml"},
			Description: "Custom build backend declared",
		},
		{
			ID: "INSTALL-MCP-002", Phase: types.PhaseInstallHooks, Severity: types.SeverityLow,
			Matcher: types.MatcherText, Pattern: `mcpServers|mcp_servers`,
			Description: "MCP server registry entry",
		},
	}
}

// Code patterns: dynamic execution, unsafe deserialization, command spawning.
func codePatternRules() []types.Rule {
	return []types.Rule{
		{
			ID: "CODE-001", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `\beval\s*\(`,
			Description: "eval() call: arbitrary code execution",
		},
		{
			ID: "CODE-002", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `\bexec\s*\(`,
			Description: "exec() call: arbitrary code execution",
		},
		{
			ID: "CODE-004", Phase: types.PhaseCodePatterns, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `pickle\.(loads?|Unpickler)`,
			Description: "pickle deserialization: arbitrary code execution",
		},
		{
			ID: "CODE-005", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `marshal\.loads?`,
			Description: "marshal deserialization: code execution risk",
		},
		{
			ID: "CODE-006", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `yaml\.(unsafe_)?load\s*\(`,
			Description: "YAML unsafe load: potential code execution",
		},
		{
			ID: "CODE-007", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `\bchild_process\b`,
			Description: "child_process usage: command execution",
		},
		{
			ID: "CODE-009", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `new\s+Function\s*\(`,
			Description: "new Function(): dynamic code execution",
		},
		{
			ID: "CODE-010", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `__import__\s*\(`,
			Description: "__import__(): dynamic import",
		},
		{
			ID: "CODE-013", Phase: types.PhaseCodePatterns, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `subprocess\.(call|run|Popen|check_output)\s*\(`,
			Description: "subprocess invocation: command execution",
		},
		{
			ID: "CODE-014", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `os\.(system|popen|exec[lv]?[pe]?)\s*\(`,
			Description: "os command execution",
		},
		{
			ID: "CODE-015", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `shell\s*=\s*True`,
			Description: "shell=True: shell injection risk",
		},
		{
			ID: "CODE-MCP-003", Phase: types.PhaseCodePatterns, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `allow_dangerous|skip_confirmation|auto_approve.*true`,
			Description: "MCP dangerous permission bypass",
		},
	}
}

// Network / exfiltration: outbound connections and data-upload patterns.
func networkExfilRules() []types.Rule {
	return []types.Rule{
		{
			ID: "NET-001", Phase: types.PhaseNetworkExfil, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `requests\.(get|post|put|delete|patch|head)\s*\(`,
			Description: "HTTP request via requests library",
		},
		{
			ID: "NET-002", Phase: types.PhaseNetworkExfil, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `urllib\.(request\.)?urlopen\s*\(`,
			Description: "HTTP request via urllib",
		},
		{
			ID: "NET-004", Phase: types.PhaseNetworkExfil, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `fetch\s*\(\s*['"]https?://`,
			Description: "fetch() to external URL",
		},
		{
			ID: "NET-006", Phase: types.PhaseNetworkExfil, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `(?i)(webhook|callback|notify).*https?://`,
			Description: "Webhook / callback URL detected",
		},
		{
			ID: "NET-007", Phase: types.PhaseNetworkExfil, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `https?://[^\s]*\.(ngrok|pipedream|requestbin|hookbin)`,
			Description: "Known exfiltration / tunneling service URL",
		},
		{
			ID: "NET-008", Phase: types.PhaseNetworkExfil, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `socket\.socket\s*\(`,
			Description: "Raw socket creation",
		},
		{
			ID: "NET-011", Phase: types.PhaseNetworkExfil, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `(base64|b64)(encode|\.b64encode)\s*\(.*\.(read|getenv|environ)`,
			Description: "Data encoding before potential exfiltration",
		},
		{
			ID: "NET-012", Phase: types.PhaseNetworkExfil, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `(curl|wget)\s+.*(https?://)`,
			Description: "curl/wget command in code",
		},
	}
}

// Credentials: secret material access and hardcoded keys.
func credentialRules() []types.Rule {
	return []types.Rule{
		{
			ID: "CRED-001", Phase: types.PhaseCredentials, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `os\.(environ|getenv)\s*[\[\(]\s*['"](AWS_|SECRET_|API_KEY|TOKEN|PASSWORD|DATABASE_URL|PRIVATE)`,
			Description: "Environment variable access for sensitive key",
		},
		{
			ID: "CRED-002", Phase: types.PhaseCredentials, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `process\.env\.(AWS_|SECRET_|API_KEY|TOKEN|PASSWORD|DATABASE_URL|PRIVATE)`,
			Description: "Node process.env access for sensitive key",
		},
		{
			ID: "CRED-003", Phase: types.PhaseCredentials, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `\.aws/(credentials|config)`,
			Description: "AWS credentials file access",
		},
		{
			ID: "CRED-004", Phase: types.PhaseCredentials, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `AKIA[0-9A-Z]{16}`,
			Description: "Hardcoded AWS access key ID",
		},
		{
			ID: "CRED-005", Phase: types.PhaseCredentials, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `\.ssh/(id_rsa|id_ed25519|id_ecdsa|authorized_keys)`,
			Description: "SSH key file access",
		},
		{
			ID: "CRED-006", Phase: types.PhaseCredentials, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`,
			Description: "Embedded private key",
		},
		{
			ID: "CRED-007", Phase: types.PhaseCredentials, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `(?i)(api[_-]?key|api[_-]?secret|access[_-]?token)\s*[:=]\s*['"][a-zA-Z0-9]{16,}`,
			Description: "Hardcoded API key or secret",
		},
		{
			ID: "CRED-010", Phase: types.PhaseCredentials, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `gh[pousr]_[A-Za-z0-9_]{36,}`,
			Description: "GitHub personal access token",
		},
	}
}

// Obfuscation: encoded or packed payloads hiding intent from review.
func obfuscationRules() []types.Rule {
	return []types.Rule{
		{
			ID: "OBFUSC-001", Phase: types.PhaseObfuscation, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `base64\.(b64)?decode\s*\(`,
			Description: "Base64 decoding (potential obfuscated payload)",
		},
		{
			ID: "OBFUSC-002", Phase: types.PhaseObfuscation, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `atob\s*\(`,
			Description: "JavaScript atob(): base64 decoding",
		},
		{
			ID: "OBFUSC-003", Phase: types.PhaseObfuscation, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `Buffer\.from\s*\([^)]*,\s*['"]base64['"]`,
			Description: "Node Buffer.from base64 decoding",
		},
		{
			ID: "OBFUSC-004", Phase: types.PhaseObfuscation, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `String\.fromCharCode\s*\(`,
			Description: "String.fromCharCode: character code obfuscation",
		},
		{
			ID: "OBFUSC-006", Phase: types.PhaseObfuscation, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `(\\x[0-9a-fA-F]{2}){8,}`,
			Description: "Long hex-encoded string (likely obfuscated)",
		},
		{
			ID: "OBFUSC-009", Phase: types.PhaseObfuscation, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `codecs\.(decode|encode)\s*\(`,
			Description: "codecs decode/encode: potential obfuscation",
		},
		{
			ID: "OBFUSC-011", Phase: types.PhaseObfuscation, Severity: types.SeverityMedium,
			Matcher: types.MatcherText, Pattern: `(zlib|gzip)\.(decompress|inflate)\s*\(`,
			Description: "Inline decompression: potential obfuscated payload",
		},
	}
}

// Provenance: structural red flags about where content came from. These
// rules carry explicit weights; the phase has no default multiplier.
func provenanceRules() []types.Rule {
	return []types.Rule{
		{
			ID: RuleHiddenFile, Phase: types.PhaseProvenance, Severity: types.SeverityLow, Weight: 1,
			Matcher: types.MatcherText, Pattern: `(^|/)\.[^/]+$`,
			Description: "Hidden file",
		},
		{
			ID: RuleBinaryFile, Phase: types.PhaseProvenance, Severity: types.SeverityMedium, Weight: 2,
			Matcher: types.MatcherText, Pattern: `binary-content`,
			Description: "Binary file, contents not scannable",
		},
		{
			ID: RuleSuspiciousFilename, Phase: types.PhaseProvenance, Severity: types.SeverityHigh, Weight: 3,
			Matcher: types.MatcherText, Pattern: `(?i)(backdoor|exploit|payload|reverse_shell|keylogger|stealer|trojan|rootkit|c2[_-]|rat[_-])`,
			Description: "Suspicious filename",
		},
		{
			ID: RuleLargeFile, Phase: types.PhaseProvenance, Severity: types.SeverityLow, Weight: 1,
			Matcher: types.MatcherText, Pattern: `oversized-file`,
			Description: "Unusually large file",
		},
		{
			ID: RuleNoVCSHistory, Phase: types.PhaseProvenance, Severity: types.SeverityMedium, Weight: 2,
			Matcher: types.MatcherText, Pattern: `missing-vcs-history`,
			Description: "No .git directory, provenance cannot be verified via git history",
		},
	}
}

// Prompt injection: instruction override and jailbreak content aimed at the
// model rather than the host.
func promptInjectionRules() []types.Rule {
	return []types.Rule{
		{
			ID: "PROMPT-001", Phase: types.PhasePromptInjection, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `(?i)(ignore|disregard|forget|bypass|override|skip)\s+(all\s+)?(previous|prior|above|earlier|system|initial)\s+(instructions?|prompts?|rules?|guidelines?|commands?|directions?)`,
			Description: "Direct instruction override attempt",
		},
		{
			ID: "PROMPT-002", Phase: types.PhasePromptInjection, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `(?i)(from now on|you are now|pretend to be|act as if you are|roleplay as)\s+(a|an)?\s*(different|new|unrestricted|unlimited|unfiltered|jailbroken|developer|admin|root)`,
			Description: "Role reassignment to bypass restrictions",
		},
		{
			ID: "PROMPT-003", Phase: types.PhasePromptInjection, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `(</system>|</instructions>|END_SYSTEM_PROMPT|---END---|###END###)`,
			Description: "Delimiter injection to escape system context",
		},
		{
			ID: "PROMPT-004", Phase: types.PhasePromptInjection, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `\b(DAN|Do Anything Now|BetterDAN|STAN|DUDE|Mongo Tom)\b`,
			Description: "Known jailbreak persona",
		},
		{
			ID: "PROMPT-005", Phase: types.PhasePromptInjection, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `(?i)(developer mode|sudo mode|admin mode|debug mode|safe mode off)\s+(enabled|activated|on|unlocked)`,
			Description: "Developer/sudo mode jailbreak",
		},
		{
			ID: "PROMPT-006", Phase: types.PhasePromptInjection, Severity: types.SeverityHigh,
			Matcher: types.MatcherText, Pattern: `(?i)(output|print|show|reveal|display|tell me)\s+(your\s+)?(complete\s+)?(system\s+prompt|initial\s+instructions?|base\s+prompt)`,
			Description: "System prompt exfiltration attempt",
		},
		{
			ID: "PROMPT-007", Phase: types.PhasePromptInjection, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `(?i)(output|print|show|reveal|display|tell me)\s+(your\s+)?(api\s+key|secret\s+key|access\s+token|password|credentials?|environment\s+variables?)`,
			Description: "Credential exfiltration attempt via prompt",
		},
		{
			ID: "PROMPT-008", Phase: types.PhasePromptInjection, Severity: types.SeverityMedium, Weight: 5,
			Matcher: types.MatcherText, Pattern: `(?i)(what\s+model|which\s+model|model\s+version|temperature\s+setting)\s+(are\s+you|do\s+you\s+use)`,
			Description: "Model configuration probing",
		},
	}
}

// Skill security: manifest-level exploits in AI skill/tool bundles.
func skillSecurityRules() []types.Rule {
	return []types.Rule{
		{
			ID: "SKILL-001", Phase: types.PhaseSkillSecurity, Severity: types.SeverityCritical,
			Matcher: types.MatcherManifest, Pattern: `tool=~(?i)^(Bash|Execute|Shell|System)$`,
			FileNames:   []string{"skill.json", "manifest.json", "skill.yaml"},
			Description: "Skill manifest invokes a shell-capable tool",
		},
		{
			ID: "SKILL-002", Phase: types.PhaseSkillSecurity, Severity: types.SeverityCritical,
			Matcher: types.MatcherManifest, Pattern: `command=~\|\s*(curl|wget|bash|sh)\b`,
			FileNames:   []string{"skill.json", "manifest.json", "mcp.json", ".mcp.json"},
			Description: "MCP server spawns shell with piped download",
		},
		{
			ID: "SKILL-003", Phase: types.PhaseSkillSecurity, Severity: types.SeverityHigh,
			Matcher: types.MatcherManifest, Pattern: `permissions=~(?i)^(ALL|SUDO|ROOT|ADMIN|UNRESTRICTED)$`,
			FileNames:   []string{"skill.json", "manifest.json", "skill.yaml"},
			Description: "Skill requests overly broad permissions",
		},
		{
			ID: "SKILL-004", Phase: types.PhaseSkillSecurity, Severity: types.SeverityLow, Weight: 2,
			Matcher: types.MatcherManifest, Pattern: `author=~(?i)^(anonymous|unknown|test|admin|root|hacker)$`,
			FileNames:   []string{"skill.json", "manifest.json", "package.json"},
			Description: "Suspicious skill author name",
		},
		{
			ID: "SKILL-005", Phase: types.PhaseSkillSecurity, Severity: types.SeverityHigh,
			Matcher: types.MatcherManifest, Pattern: `*.url=~https?://(discord\.com/api/webhooks|hooks\.slack\.com|pastebin\.com)`,
			FileNames:   []string{"skill.json", "manifest.json", "skill.yaml"},
			Description: "Skill connects to known exfiltration endpoint",
		},
		{
			ID: "SKILL-006", Phase: types.PhaseSkillSecurity, Severity: types.SeverityCritical,
			Matcher: types.MatcherText, Pattern: `(?i)(rm\s+-rf\s+[/~]|mkfs|dd\s+if=/dev)`,
			FileNames:   []string{"skill.json", "manifest.json", "skill.yaml", "SKILL.md"},
			Description: "Destructive command embedded in skill definition",
		},
	}
}
