package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenMCP-Dialog/sdk/go/dialog"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(dialog.ChatResponse{
			TraceID:           "trace-demo",
			SessionID:         "demo",
			Clarifications:    []dialog.Clarification{{Intent: "leave_request", Missing: []string{"start", "end"}}},
			AssistantResponse: "请告诉我请假的开始和结束日期。",
			State:             dialog.ConversationState{Status: "awaiting_args", ActiveIntent: "leave_request", PendingArgs: []string{"start", "end"}},
		})
	})
	mux.HandleFunc("POST /api/v1/turns", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(dialog.Turn{ID: "turn-demo", SessionID: "demo", Status: "pending"})
	})
	mux.HandleFunc("GET /api/v1/turns/turn-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(dialog.Turn{
			ID:        "turn-demo",
			SessionID: "demo",
			Status:    "succeeded",
			Result:    &dialog.TurnOutcome{Reply: "已为你提交 2024-06-01 至 2024-06-03 的请假申请。", ConversationStatus: "idle"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := dialog.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Chat(ctx, "demo", "我想请假")
	if err != nil {
		panic(err)
	}
	fmt.Printf("assistant: %s (status=%s)\n", reply.AssistantResponse, reply.State.Status)

	turn, err := client.SubmitTurn(ctx, dialog.TurnSubmission{SessionID: "demo", Message: "6月1日到6月3日"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted turn %s (status=%s)\n", turn.ID, turn.Status)

	done, err := client.WaitForTurn(ctx, turn.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("turn %s finished: %s\n", done.ID, done.Result.Reply)
}
