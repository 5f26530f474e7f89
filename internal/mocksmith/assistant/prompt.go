package assistant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"mocksmith/internal/mocksmith/domain"
)

// Prompt is the composed oracle input for one task: a system instruction
// block and the user-facing content. Conversation history is threaded in by
// the oracle caller, between the two.
type Prompt struct {
	Instructions string
	UserContent  string
}

// roleDescription is shared by every task instruction. It is deliberately
// short; the per-task addendum carries the output contract.
const roleDescription = `You are Mocksmith, an assistant that manages simulated HTTP API endpoints (mappings) for a mock server.
You translate the operator's request into configuration. You never invent endpoints the operator did not ask for.`

// mappingSchemaRules spells out the exact JSON shape expected for any task
// that emits a mapping. The prohibition on collapsing matcher objects to
// bare strings is load-bearing; several models will otherwise emit
// "headerMatchers": {"Authorization": "required"}.
const mappingSchemaRules = `OUTPUT FORMAT (strict):
Respond with a single JSON object and nothing else. No markdown, no code fences, no commentary.
Fields:
  "name":            string, short human label
  "method":          one of GET POST PUT PATCH DELETE HEAD OPTIONS ANY
  "path":            string, the request path to match, e.g. "/api/users"
  "priority":        integer, lower wins; omit to accept the default
  "enabled":         boolean
  "tags":            array of strings
  "headers":         object, exact-match header name to literal value
  "headerMatchers":  object, header name to a matcher OBJECT
  "bodyMatcher":     a matcher OBJECT, or omit
  "responseStatus":  integer HTTP status (required)
  "responseHeaders": object, header name to literal value
  "responseBody":    string; may use {{request.path}} style template variables
  "delay":           object {"mode": "none"|"fixed"|"uniform", "fixedMillis": int, "minMillis": int, "maxMillis": int}, or omit

A matcher OBJECT always has this exact shape:
  {"matchType": "equalTo"|"matches"|"contains"|"absent"|"exists", "pattern": string}
Never collapse a matcher to a bare string. For "exists" and "absent" the pattern is "".
Never emit "id", "workspace", "createdAt" or "updatedAt"; those are assigned by the system.

Example:
  {"name": "get user", "method": "GET", "path": "/api/users/42", "enabled": true,
   "headerMatchers": {"Authorization": {"matchType": "exists", "pattern": ""}},
   "responseStatus": 200, "responseHeaders": {"Content-Type": "application/json"},
   "responseBody": "{\"id\": 42}"}`

// planSchemaRules is the output contract for the bulk-update planner.
const planSchemaRules = `OUTPUT FORMAT (strict):
Respond with a single JSON object and nothing else. No markdown, no code fences.
Fields (all required except updateDetails):
  "updateKind":    one of add_header set_priority enable disable set_delay add_tag set_response_status
  "targetMode":    "all" to target every mapping in the workspace, "subset" for specific ones
  "targetIds":     array of mapping id strings; empty when targetMode is "all"
  "updateDetails": object with the parameters of the update:
      add_header:          {"name": string, "value": string}  (value "required" means existence-only)
      set_priority:        {"priority": integer}
      set_delay:           {"mode": "fixed"|"uniform", "fixedMillis": int, "minMillis": int, "maxMillis": int}
      add_tag:             {"tag": string}
      set_response_status: {"status": integer}
  "summary":       one sentence describing the change, for the operator`

// freeTextRules is shared by the explain/debug/optimize/suggest/analysis
// tasks, which answer in prose rather than JSON.
const freeTextRules = `OUTPUT FORMAT:
Respond in plain concise prose for a developer. No JSON, no code fences unless quoting configuration.`

// taskInstructions is the per-kind addendum appended after the role and
// context blocks. Every task kind has an entry; Compose falls back to the
// default task's entry for safety, but AllTasks coverage is asserted in
// tests.
var taskInstructions = map[TaskType]string{
	TaskCreateMapping: `TASK: Create one new mapping from the operator's description.
Choose sensible defaults for anything unspecified (enabled true, status 200, Content-Type application/json for JSON bodies).
` + mappingSchemaRules,

	TaskUpdateMapping: `TASK: Modify the mapping shown in the context block according to the operator's request.
Emit the COMPLETE updated mapping, not a diff. Preserve every field the operator did not ask to change.
` + mappingSchemaRules,

	TaskDeleteMapping: `TASK: The operator wants to delete the mapping shown in the context block.
Respond with one short sentence confirming which endpoint will be removed.
` + freeTextRules,

	TaskListMappings: `TASK: Summarize the mappings in the context block for the operator.
One line per mapping: method, path, status, enabled state. Group by tag when tags exist.
` + freeTextRules,

	TaskExplainMapping: `TASK: Explain the mapping shown in the context block: what requests it matches, what it responds with, any delay, and what each template variable in the response body resolves to.
` + freeTextRules,

	TaskCreateFromSpec: `TASK: The operator supplied an API specification document. For EACH operation in it, produce one mapping.
Respond with a single JSON object {"mappings": [ ... ]} where each element follows the mapping shape below. No other text.
` + mappingSchemaRules,

	TaskBulkUpdateMappings: `TASK: The operator wants to change several mappings at once. Produce an update plan against the mappings in the context block.
` + planSchemaRules,

	TaskMoveMapping: `TASK: The operator wants to move the mapping shown in the context block to another workspace.
Respond with one short sentence naming the mapping and the destination workspace.
` + freeTextRules,

	TaskCreateWorkspace: `TASK: The operator wants a new workspace. Extract its name (lowercase, hyphenated) and an optional one-line description.
Respond with a single JSON object {"name": string, "description": string} and nothing else.`,

	TaskListWorkspaces: `TASK: Summarize the workspaces listed in the context block, one line each with the mapping count.
` + freeTextRules,

	TaskDeleteWorkspace: `TASK: The operator wants to delete a workspace. Respond with one short sentence naming it and noting that it must be empty.
` + freeTextRules,

	TaskCreateUser: `TASK: The operator wants a new user account. Extract the username and role.
Respond with a single JSON object {"username": string, "role": "admin"|"editor"|"viewer"} and nothing else. Default role is "viewer".`,

	TaskListUsers: `TASK: Summarize the user accounts in the context block, one line each with the role. Never mention passwords or hashes.
` + freeTextRules,

	TaskUpdateUser: `TASK: The operator wants to change a user account. Extract the username and the new role.
Respond with a single JSON object {"username": string, "role": "admin"|"editor"|"viewer"} and nothing else.`,

	TaskDeleteUser: `TASK: The operator wants to delete a user account. Respond with one short sentence naming the account.
` + freeTextRules,

	TaskDebugMapping: `TASK: The mapping shown in the context block is not behaving as the operator expects. Work through its match rules step by step and point out the most likely cause (method mismatch, path typo, header matcher, priority shadowing, disabled flag).
` + freeTextRules,

	TaskOptimizeMapping: `TASK: Review the mapping shown in the context block and suggest concrete improvements: tighter matchers, realistic response headers, priorities that avoid shadowing, template variables instead of hardcoded values.
` + freeTextRules,

	TaskSuggestScenarios: `TASK: Given the mappings in the context block, suggest additional mock scenarios the operator is likely missing (error responses, slow responses, auth failures, edge-case payloads). List each as one line: method, path, status, one-phrase rationale.
` + freeTextRules,

	TaskAnalyzePayload: `TASK: The operator supplied a request payload. Determine which mapping in the context block would match it and why, or explain why nothing matches.
` + freeTextRules,

	TaskAnalyzeEndpointCoverage: `TASK: Compare the endpoints the operator described against the mappings in the context block and report coverage: which endpoints are mocked, which are missing, and any duplicates or shadowed mappings.
` + freeTextRules,
}

// Template-variable reference scans over stored response bodies. The first
// catches general interpolation ({{request.path}}, {{randomValue type='UUID'}}),
// the second the data-extraction form that names a source field.
var (
	templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_.]*)[^{}]*\}\}`)
	jsonPathPattern    = regexp.MustCompile(`\{\{\s*jsonPath\s+request\.body\s+'([^']+)'\s*\}\}`)
)

// TemplateRefs extracts the set of template-variable references used in a
// response body. Returned sorted and deduplicated so prompt output is
// stable. jsonPath extractions are reported as "jsonPath(<field>)".
func TemplateRefs(body string) []string {
	seen := make(map[string]struct{})

	for _, m := range templateVarPattern.FindAllStringSubmatch(body, -1) {
		seen[m[1]] = struct{}{}
	}
	for _, m := range jsonPathPattern.FindAllStringSubmatch(body, -1) {
		delete(seen, "jsonPath")
		seen["jsonPath("+m[1]+")"] = struct{}{}
	}

	refs := make([]string, 0, len(seen))
	for r := range seen {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return refs
}

// summaryLine renders the one-line context entry for a mapping.
func summaryLine(m *domain.Mapping) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- [%s] %s %s %s -> %d", m.ID, m.Name, m.Method, m.Path, m.ResponseStatus)
	fmt.Fprintf(&sb, " (priority %d", m.Priority)
	if !m.Enabled {
		sb.WriteString(", disabled")
	}
	if len(m.Tags) > 0 {
		fmt.Fprintf(&sb, ", tags: %s", strings.Join(m.Tags, ","))
	}
	if m.Delay != nil && m.Delay.Mode != domain.DelayNone {
		fmt.Fprintf(&sb, ", delay: %s", m.Delay.Mode)
	}
	sb.WriteString(")")
	return sb.String()
}

// workspaceSummary renders the namespace-wide context block.
func workspaceSummary(workspace string, mappings []*domain.Mapping) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "WORKSPACE %q (%d mappings):\n", workspace, len(mappings))
	if len(mappings) == 0 {
		sb.WriteString("(no mappings yet)\n")
		return sb.String()
	}
	for _, m := range mappings {
		sb.WriteString(summaryLine(m))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// deepBlock renders the full detail block for a single mapping, used when a
// request targets one known entity (follow-ups, explain, update, debug).
func deepBlock(m *domain.Mapping) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TARGET MAPPING (id %s):\n", m.ID)
	fmt.Fprintf(&sb, "  name:     %s\n", m.Name)
	fmt.Fprintf(&sb, "  request:  %s %s\n", m.Method, m.Path)
	fmt.Fprintf(&sb, "  priority: %d  enabled: %t\n", m.Priority, m.Enabled)
	if len(m.Tags) > 0 {
		fmt.Fprintf(&sb, "  tags:     %s\n", strings.Join(m.Tags, ", "))
	}
	for _, name := range sortedKeys(m.Headers) {
		fmt.Fprintf(&sb, "  header:   %s = %q\n", name, m.Headers[name])
	}
	for _, name := range sortedMatcherKeys(m.HeaderMatchers) {
		mt := m.HeaderMatchers[name]
		fmt.Fprintf(&sb, "  header:   %s %s %q\n", name, mt.MatchType, mt.Pattern)
	}
	if m.BodyMatcher != nil {
		fmt.Fprintf(&sb, "  body:     %s %q\n", m.BodyMatcher.MatchType, m.BodyMatcher.Pattern)
	}
	fmt.Fprintf(&sb, "  response: %d\n", m.ResponseStatus)
	for _, name := range sortedKeys(m.ResponseHeaders) {
		fmt.Fprintf(&sb, "  respHdr:  %s = %q\n", name, m.ResponseHeaders[name])
	}
	if m.ResponseBody != "" {
		fmt.Fprintf(&sb, "  body out: %s\n", m.ResponseBody)
		if refs := TemplateRefs(m.ResponseBody); len(refs) > 0 {
			fmt.Fprintf(&sb, "  template vars: %s\n", strings.Join(refs, ", "))
		}
	}
	if m.Delay != nil && m.Delay.Mode != domain.DelayNone {
		switch m.Delay.Mode {
		case domain.DelayFixed:
			fmt.Fprintf(&sb, "  delay:    fixed %dms\n", m.Delay.FixedMillis)
		case domain.DelayUniform:
			fmt.Fprintf(&sb, "  delay:    uniform %d-%dms\n", m.Delay.MinMillis, m.Delay.MaxMillis)
		}
	}
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMatcherKeys(m map[string]domain.Matcher) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ComposeInput carries everything Compose needs to build a prompt for one
// request.
type ComposeInput struct {
	Task      TaskType
	Workspace string
	// Mappings is the relevance-ranked context slice for the workspace.
	Mappings []*domain.Mapping
	// Target is the resolved entity, when the task has one.
	Target *domain.Mapping
	// FollowUp marks conversational follow-ups; the target gets a deep
	// block in addition to the workspace summary.
	FollowUp bool
	// ExtraFacts are task-specific lines appended to the context block
	// (workspace listings, user listings, supplied payloads).
	ExtraFacts []string
	UserPrompt string
}

// Compose builds the oracle prompt for a request. Instructions are the
// role description, the context block, and the task's output contract;
// UserContent is the operator's prompt verbatim.
func Compose(in ComposeInput) Prompt {
	var ctx strings.Builder

	if in.Target != nil && (in.FollowUp || taskWantsDeepBlock(in.Task)) {
		ctx.WriteString(deepBlock(in.Target))
		ctx.WriteByte('\n')
	}
	ctx.WriteString(workspaceSummary(in.Workspace, in.Mappings))
	for _, fact := range in.ExtraFacts {
		ctx.WriteByte('\n')
		ctx.WriteString(fact)
	}

	instr, ok := taskInstructions[in.Task]
	if !ok {
		instr = taskInstructions[DefaultTask]
	}

	return Prompt{
		Instructions: roleDescription + "\n\nCURRENT STATE:\n" + ctx.String() + "\n" + instr,
		UserContent:  in.UserPrompt,
	}
}

// taskWantsDeepBlock lists the kinds that always include the full target
// detail, follow-up or not.
func taskWantsDeepBlock(t TaskType) bool {
	switch t {
	case TaskUpdateMapping, TaskExplainMapping, TaskDebugMapping,
		TaskOptimizeMapping, TaskMoveMapping, TaskDeleteMapping:
		return true
	}
	return false
}
