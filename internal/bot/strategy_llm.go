package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jarlsgame/jarls/server/pkg/jarls"
)

// LLM adapter configuration, set at startup from the environment. The
// adapter speaks the OpenAI-compatible chat completions protocol, so any
// provider exposing that surface works.
var (
	LLMBaseURL      string
	LLMAPIKey       string
	LLMDefaultModel = "gpt-4o-mini"
)

const llmSystemPrompt = `You are playing Jarls, a turn-based strategy game on a hex board.
Win by moving your jarl onto the throne at the center, or by eliminating
every enemy jarl. Pieces move in straight lines; moving 2 hexes grants
momentum, which lets you push enemy pieces. Pieces pushed off the board or
into holes are eliminated.
You will receive the board and a numbered list of your legal moves.
Reply with the number of the move you choose and nothing else.`

// newLLMOrFallback attempts to create an LLMStrategy. If the adapter is not
// configured, it falls back to GreedyStrategy.
func newLLMOrFallback(cfg *jarls.AIConfig) Strategy {
	s, err := NewLLMStrategy(cfg)
	if err != nil {
		log.Printf("bot: llm strategy requested but unavailable: %v; falling back to greedy", err)
		return &GreedyStrategy{}
	}
	return s
}

// LLMStrategy asks a chat completion model to pick from the legal move
// list. Replies that cannot be parsed into a legal choice degrade to the
// greedy evaluation, so a confused model never stalls a game.
type LLMStrategy struct {
	model        string
	customPrompt string
	baseURL      string
	httpC        *http.Client
}

// NewLLMStrategy builds the adapter for one AI player's configuration.
func NewLLMStrategy(cfg *jarls.AIConfig) (*LLMStrategy, error) {
	if LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY not set")
	}
	model := ""
	custom := ""
	if cfg != nil {
		model = cfg.Model
		custom = cfg.CustomPrompt
	}
	if model == "" {
		model = LLMDefaultModel
	}
	baseURL := strings.TrimRight(LLMBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &LLMStrategy{
		model:        model,
		customPrompt: custom,
		baseURL:      baseURL,
		httpC:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *LLMStrategy) Name() string { return "llm-" + e.model }

// GenerateMove renders the position, asks the model to pick a numbered
// move, and maps the answer back onto the legal list.
func (e *LLMStrategy) GenerateMove(ctx context.Context, s *jarls.GameState, playerID string) (jarls.MoveCommand, error) {
	moves := jarls.AllValidMoves(s, playerID)
	if len(moves) == 0 {
		return jarls.MoveCommand{}, fmt.Errorf("no legal moves for %s", playerID)
	}

	prompt := buildMovePrompt(s, playerID, moves)
	reply, err := e.chat(ctx, prompt)
	if err != nil {
		log.Printf("bot/llm: completion failed: %v; falling back to greedy", err)
		return GreedyStrategy{}.GenerateMove(ctx, s, playerID)
	}

	idx, ok := parseChoice(reply, len(moves))
	if !ok {
		log.Printf("bot/llm: unparseable reply %q; falling back to greedy", truncate(reply, 120))
		return GreedyStrategy{}.GenerateMove(ctx, s, playerID)
	}
	pick := moves[idx]
	return jarls.MoveCommand{PieceID: pick.PieceID, To: pick.To}, nil
}

// GenerateStarvationChoice asks the model which warrior to sacrifice.
func (e *LLMStrategy) GenerateStarvationChoice(ctx context.Context, s *jarls.GameState, playerID string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("no starvation candidates")
	}

	var b strings.Builder
	b.WriteString("A starvation round forces you to sacrifice one warrior.\n")
	b.WriteString(renderBoard(s, playerID))
	b.WriteString("\nCandidates:\n")
	for i, id := range candidates {
		p := s.PieceByID(id)
		if p != nil {
			fmt.Fprintf(&b, "%d. %s at (%d,%d)\n", i+1, id, p.Position.Q, p.Position.R)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, id)
		}
	}
	b.WriteString("Reply with the number of the warrior to sacrifice and nothing else.")

	reply, err := e.chat(ctx, b.String())
	if err != nil {
		log.Printf("bot/llm: starvation completion failed: %v; falling back to greedy", err)
		return GreedyStrategy{}.GenerateStarvationChoice(ctx, s, playerID, candidates)
	}
	idx, ok := parseChoice(reply, len(candidates))
	if !ok {
		return GreedyStrategy{}.GenerateStarvationChoice(ctx, s, playerID, candidates)
	}
	return candidates[idx], nil
}

// chat sends one completion request and returns the first choice's content.
func (e *LLMStrategy) chat(ctx context.Context, prompt string) (string, error) {
	system := llmSystemPrompt
	if e.customPrompt != "" {
		system = system + "\n\n" + e.customPrompt
	}
	payload := map[string]any{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
		"max_tokens":  20,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+LLMAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpC.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// buildMovePrompt renders the board plus a numbered legal move list.
func buildMovePrompt(s *jarls.GameState, playerID string, moves []jarls.ValidMove) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d. You are player %s.\n", s.TurnNumber, playerID)
	b.WriteString(renderBoard(s, playerID))
	b.WriteString("\nLegal moves:\n")
	for i, mv := range moves {
		fmt.Fprintf(&b, "%d. %s %s (%d,%d) -> (%d,%d)", i+1, mv.PieceID, mv.Kind, mv.From.Q, mv.From.R, mv.To.Q, mv.To.R)
		if mv.HasMomentum {
			b.WriteString(" [momentum]")
		}
		if mv.Combat != nil {
			fmt.Fprintf(&b, " [attack %d vs %d]", mv.Combat.Attack, mv.Combat.Defense)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderBoard draws the hex grid row by row. Uppercase letters are jarls,
// lowercase are warriors, digits identify the owning seat.
func renderBoard(s *jarls.GameState, viewerID string) string {
	radius := s.Config.BoardRadius
	seat := func(playerID string) int {
		for i := range s.Players {
			if s.Players[i].ID == playerID {
				return i
			}
		}
		return -1
	}
	viewerSeat := seat(viewerID)

	var b strings.Builder
	fmt.Fprintf(&b, "Board radius %d. You are seat %d. Throne T at (0,0).\n", radius, viewerSeat)
	for r := -radius; r <= radius; r++ {
		b.WriteString(strings.Repeat(" ", abs(r)))
		for q := -radius; q <= radius; q++ {
			h := jarls.Hex{Q: q, R: r}
			if !jarls.OnBoard(h, radius) {
				continue
			}
			cell := "."
			switch {
			case s.HoleAt(h):
				cell = "O"
			case h == jarls.Throne:
				cell = "T"
			}
			if p := s.PieceAt(h); p != nil {
				if p.Type == jarls.Jarl {
					cell = "J" + strconv.Itoa(seat(p.PlayerID))
				} else {
					cell = "w" + strconv.Itoa(seat(p.PlayerID))
				}
			}
			b.WriteString(cell)
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseChoice extracts a 1-based selection from a model reply.
func parseChoice(reply string, n int) (int, bool) {
	start := -1
	for i, c := range reply {
		if c >= '0' && c <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(reply) && reply[end] >= '0' && reply[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(reply[start:end])
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
