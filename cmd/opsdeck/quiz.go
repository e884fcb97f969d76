package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/opsdeck/opsdeck/internal/models"
)

// quizSessionView mirrors the daemon's session payload.
type quizSessionView struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Question  *struct {
		ID      int             `json:"id"`
		Index   int             `json:"index"`
		Total   int             `json:"total"`
		Text    string          `json:"text"`
		Answers []models.Answer `json:"answers"`
	} `json:"question,omitempty"`
	LeadID int `json:"lead_id,omitempty"`
}

type quizSubmitView struct {
	Success    bool   `json:"success"`
	LeadID     int    `json:"lead_id"`
	SegmentKey string `json:"segment_key"`
}

func runQuizCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		return newCLIError("quiz needs a subcommand", "one of: list, show, run")
	}
	switch args[0] {
	case "list":
		return runQuizList(ctx, args[1:], base)
	case "show":
		return runQuizShow(ctx, args[1:], base)
	case "run":
		return runQuizRun(ctx, args[1:], base)
	default:
		return fmt.Errorf("unknown quiz command %q", args[0])
	}
}

func runQuizList(ctx context.Context, args []string, base commonFlags) error {
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/quizzes", nil)
	if err != nil {
		return err
	}
	var resp quizListResponse
	return render(base, data, &resp, func() {
		for _, q := range resp.Quizzes {
			active := "inactive"
			if q.IsActive {
				active = "active"
			}
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", q.Slug, q.Title, active)
		}
	})
}

func runQuizShow(ctx context.Context, args []string, base commonFlags) error {
	if len(args) != 1 {
		return newCLIError("quiz show needs a slug", "usage: opsdeck quiz show <slug>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/quizzes/"+args[0], nil)
	if err != nil {
		return err
	}
	return prettyPrintJSON(stdout, data)
}

// runQuizRun walks one respondent through the quiz interactively, driving
// the daemon's session endpoints step by step.
func runQuizRun(ctx context.Context, args []string, base commonFlags) error {
	if len(args) != 1 {
		return newCLIError("quiz run needs a slug", "usage: opsdeck quiz run <slug>")
	}
	if base.jsonOutput {
		return newCLIError("quiz run is interactive and does not support --json", "")
	}
	if !isInteractive() {
		return newCLIError("quiz run needs a terminal", "")
	}

	client := newAPIClient(base.addr, base.timeout)
	var sess quizSessionView
	if err := client.postJSON(ctx, "/v1/quiz-sessions", map[string]string{"slug": args[0]}, &sess); err != nil {
		return err
	}
	base2 := "/v1/quiz-sessions/" + sess.SessionID
	reader := bufio.NewReader(os.Stdin)

	// intro -> first question
	if err := client.postJSON(ctx, base2+"/advance", nil, &sess); err != nil {
		return err
	}
	for sess.Stage == "question" {
		if sess.Question == nil {
			return fmt.Errorf("daemon returned a question stage without a question")
		}
		fmt.Fprintf(stdout, "\n[%d/%d] %s\n", sess.Question.Index+1, sess.Question.Total, sess.Question.Text)
		for i, answer := range sess.Question.Answers {
			fmt.Fprintf(stdout, "  %d) %s\n", i+1, answer.AnswerText)
		}
		choice, err := promptChoice(reader, len(sess.Question.Answers))
		if err != nil {
			return err
		}
		answer := sess.Question.Answers[choice-1]
		if err := client.postJSON(ctx, base2+"/select", map[string]int{
			"question_id": sess.Question.ID,
			"answer_id":   answer.ID,
		}, &sess); err != nil {
			return err
		}
		if err := client.postJSON(ctx, base2+"/advance", nil, &sess); err != nil {
			return err
		}
	}

	if sess.Stage != "contact" {
		return fmt.Errorf("unexpected stage %q", sess.Stage)
	}
	name, err := promptLine(reader, "Name: ")
	if err != nil {
		return err
	}
	phone, err := promptLine(reader, "Phone: ")
	if err != nil {
		return err
	}
	email, err := promptLine(reader, "Email (optional): ")
	if err != nil {
		return err
	}

	var result quizSubmitView
	if err := client.postJSON(ctx, base2+"/submit", map[string]any{
		"contactInfo": models.ContactInfo{Name: name, Phone: phone, Email: email},
	}, &result); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\nlead %d submitted (segment %s)\n", result.LeadID, result.SegmentKey)
	return nil
}

func promptChoice(reader *bufio.Reader, max int) (int, error) {
	for {
		fmt.Fprintf(stdout, "answer (1-%d): ", max)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return 0, err
		}
		choice, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil && choice >= 1 && choice <= max {
			return choice, nil
		}
		if err == io.EOF {
			return 0, fmt.Errorf("aborted")
		}
	}
}

func promptLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(stdout, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
