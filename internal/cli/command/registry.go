package command

import "sort"

// Registry returns all CLI commands keyed by "group action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Group:   "health",
			Action:  "check",
			Summary: "check that the grading service is up",
		},
		{
			Group:   "score",
			Action:  "submit",
			Summary: "submit one answer and wait for its AI score",
			Fields: []Field{
				{Name: "exam_id", Aliases: []string{"exam"}, Prompt: "exam_id", Type: FieldInt64, Required: true},
				{Name: "question_id", Aliases: []string{"question"}, Prompt: "question_id", Type: FieldInt64, Required: true},
				{Name: "candidate_id", Aliases: []string{"candidate"}, Prompt: "candidate_id", Type: FieldString, Required: true},
				{Name: "answer", Aliases: []string{"answer_text"}, Prompt: "answer", Type: FieldString},
				{Name: "answer_file", Prompt: "answer_file", Type: FieldFile},
			},
			OneOf: [][]string{{"answer", "answer_file"}},
		},
		{
			Group:   "results",
			Action:  "list",
			Summary: "list scoring results of an exam",
			Fields: []Field{
				{Name: "exam_id", Aliases: []string{"exam"}, Prompt: "exam_id", Type: FieldInt64, Required: true},
				{Name: "candidate_id", Aliases: []string{"candidate"}, Prompt: "candidate_id", Type: FieldString},
			},
		},
		{
			Group:   "results",
			Action:  "get",
			Summary: "show one result with AI feedback",
			Fields: []Field{
				{Name: "id", Aliases: []string{"result_id"}, Prompt: "result_id", Type: FieldInt64, Required: true},
				{Name: "json", Type: FieldBool},
			},
		},
		{
			Group:   "review",
			Action:  "apply",
			Summary: "save a reviewer's final score and notes",
			Fields: []Field{
				{Name: "id", Aliases: []string{"result_id"}, Prompt: "result_id", Type: FieldInt64, Required: true},
				{Name: "score", Aliases: []string{"final_score"}, Prompt: "final_score", Type: FieldFloat, Required: true},
				{Name: "notes", Aliases: []string{"reviewer_notes"}, Prompt: "notes", Type: FieldString},
			},
		},
		{
			Group:   "batch",
			Action:  "preview",
			Summary: "inspect a CSV before uploading it",
			Fields: []Field{
				{Name: "file", Prompt: "csv file", Type: FieldFile, Required: true},
			},
		},
		{
			Group:   "batch",
			Action:  "run",
			Summary: "upload a CSV and follow the batch job to completion",
			Fields: []Field{
				{Name: "file", Prompt: "csv file", Type: FieldFile, Required: true},
				{Name: "exam_name", Prompt: "exam_name", Type: FieldString, Required: true},
				{Name: "question_title", Prompt: "question_title", Type: FieldString, Required: true},
				{Name: "question_text", Prompt: "question_text", Type: FieldString, Required: true},
				{Name: "max_score", Prompt: "max_score", Type: FieldInt},
				{Name: "char_limit", Prompt: "char_limit", Type: FieldInt},
				{Name: "detach", Type: FieldBool},
			},
		},
		{
			Group:   "batch",
			Action:  "watch",
			Summary: "resume following a batch job",
			Fields: []Field{
				{Name: "id", Aliases: []string{"upload_id"}, Prompt: "upload_id", Type: FieldString, Required: true},
				{Name: "detach", Type: FieldBool},
			},
		},
		{
			Group:   "batch",
			Action:  "jobs",
			Summary: "list tracked batch jobs",
		},
		{
			Group:   "batch",
			Action:  "forget",
			Summary: "stop tracking a batch job",
			Fields: []Field{
				{Name: "id", Aliases: []string{"upload_id"}, Prompt: "upload_id", Type: FieldString, Required: true},
			},
		},
		{
			Group:   "export",
			Action:  "csv",
			Summary: "export results as CSV through the configured sink",
			Fields: []Field{
				{Name: "exam_id", Aliases: []string{"exam"}, Prompt: "exam_id", Type: FieldInt64, Required: true},
				{Name: "reviewed_only", Type: FieldBool},
				{Name: "gzip", Type: FieldBool},
			},
		},
		{
			Group:   "export",
			Action:  "download",
			Summary: "store the service-rendered CSV through the configured sink",
			Fields: []Field{
				{Name: "exam_id", Aliases: []string{"exam"}, Prompt: "exam_id", Type: FieldInt64, Required: true},
				{Name: "reviewed_only", Type: FieldBool},
			},
		},
		{
			Group:   "export",
			Action:  "summary",
			Summary: "show score statistics of an exam",
			Fields: []Field{
				{Name: "exam_id", Aliases: []string{"exam"}, Prompt: "exam_id", Type: FieldInt64, Required: true},
				{Name: "server", Type: FieldBool},
			},
		},
	}

	m := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		m[cmd.Key()] = cmd
	}
	return m
}

// Resolve finds the command named by the leading tokens. A group with a single action may be
// called by its group name alone, e.g. "health". The remaining tokens are returned.
func Resolve(commands map[string]Command, tokens []string) (Command, []string, bool) {
	if len(tokens) == 0 {
		return Command{}, nil, false
	}
	if len(tokens) >= 2 {
		if cmd, ok := commands[tokens[0]+" "+tokens[1]]; ok {
			return cmd, tokens[2:], true
		}
	}
	var only Command
	n := 0
	for _, cmd := range commands {
		if cmd.Group == tokens[0] {
			only = cmd
			n++
		}
	}
	if n == 1 {
		return only, tokens[1:], true
	}
	return Command{}, nil, false
}

// Sorted returns the commands ordered by key.
func Sorted(commands map[string]Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Key() < out[k].Key() })
	return out
}
