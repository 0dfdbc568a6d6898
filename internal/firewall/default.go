package firewall

// DefaultSignatures contains the built-in injection patterns. These are
// the phrasings adversarial content uses to hijack an agent's chain,
// plus exfiltration markers that should never ride along in tool
// payloads.
var DefaultSignatures = []Signature{
	{Name: "ignore_instructions", Pattern: `ignore\s+(all\s+|any\s+)?(previous|prior|above)\s+instructions`, Confidence: 0.9},
	{Name: "disregard_instructions", Pattern: `disregard\s+(all\s+|any\s+)?(previous|prior|your)\s+(instructions|rules|guidelines)`, Confidence: 0.9},
	{Name: "new_instructions", Pattern: `(your\s+new\s+instructions|new\s+instructions\s*:)`, Confidence: 0.8},
	{Name: "system_prompt_probe", Pattern: `(reveal|print|repeat|show)\s+(your\s+)?(system\s+prompt|initial\s+instructions)`, Confidence: 0.85},
	{Name: "role_override", Pattern: `you\s+are\s+now\s+(a|an|the|in)\s`, Confidence: 0.6},
	{Name: "developer_mode", Pattern: `(developer|jailbreak|dan)\s+mode`, Confidence: 0.7},
	{Name: "do_anything_now", Pattern: `do\s+anything\s+now`, Confidence: 0.6},
	{Name: "hidden_html_comment", Pattern: `<!--[\s\S]{0,200}?(instruction|prompt|ignore)[\s\S]{0,200}?-->`, Confidence: 0.7},
	{Name: "env_exfiltration", Pattern: `(printenv|/proc/self/environ|\$\{?ENV\b)`, Confidence: 0.8},
	{Name: "ssh_key_access", Pattern: `\.ssh/(id_rsa|id_ed25519)`, Confidence: 0.8},
	{Name: "cloud_credentials", Pattern: `\.aws/credentials`, Confidence: 0.8},
	{Name: "curl_pipe_shell", Pattern: `(curl|wget)[^\n|]*\|\s*(ba)?sh`, Confidence: 0.9},
	{Name: "base64_blob", Pattern: `[A-Za-z0-9+/]{120,}={0,2}`, Confidence: 0.4},
}
