//go:build integration_test

// Package demo drives a locally running `quizinho serve --config config/local.yaml`.
package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizinho/internal/api"
	"github.com/victornm/quizinho/internal/domain"
)

const (
	httpAddr      = "http://localhost:8080"
	grpcAddr      = "localhost:9090"
	webhookSecret = "whsec_local"
	cronSecret    = "local-cron-secret"
)

var questions = []domain.Question{
	{Text: "2 + 2?", Alternatives: []string{"3", "4"}, CorrectAlternative: "4"},
	{Text: "Capital of Brazil?", Alternatives: []string{"Rio", "Brasília"}, CorrectAlternative: "Brasília"},
}

func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Server is up
	{
		resp, err := makeHealthClient(t).Check(ctx, &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	}

	// Free quiz is shareable immediately
	{
		var resp api.CreateQuizResponse
		post(t, "/api/quizzes", api.CreateQuizRequest{Questions: questions, Plan: domain.PlanFree}, &resp)
		require.NotEmpty(t, resp.QuizURL)
		t.Logf("Free quiz at %s", resp.QuizURL)

		var q domain.Quiz
		get(t, "/api/quizzes/"+lastSegment(resp.QuizURL), &q)
		require.True(t, q.Paid)
	}

	// Premium quiz waits for payment
	customID := fmt.Sprintf("demo-%d", time.Now().Unix())
	var premiumID string
	{
		var resp api.CreateQuizResponse
		post(t, "/api/quizzes", api.CreateQuizRequest{Questions: questions, Plan: domain.PlanPremium, CustomID: customID, Theme: "party"}, &resp)
		require.NotEmpty(t, resp.PaymentURL)
		t.Logf("Premium checkout at %s", resp.PaymentURL)

		premiumID = customID
		var q domain.Quiz
		get(t, "/api/quizzes/"+premiumID, &q)
		require.False(t, q.Paid)
	}

	// Payment notification unlocks it and is announced on pubsub
	{
		sub := makeRedis(t).Subscribe(ctx, "quizinho:quiz:"+premiumID)
		t.Cleanup(func() { sub.Close() })
		_, err := sub.Receive(ctx)
		require.NoError(t, err)

		payload := fmt.Sprintf(`{"id":"evt_%s","object":"event","type":"checkout.session.completed","data":{"object":{"object":"checkout.session","client_reference_id":%q}}}`, premiumID, premiumID)
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(payload),
			Secret:    webhookSecret,
			Timestamp: time.Now(),
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpAddr+"/api/webhooks/stripe", strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Stripe-Signature", signed.Header)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)
		t.Logf("Notification: %s", msg.Payload)

		var q domain.Quiz
		get(t, "/api/quizzes/"+premiumID, &q)
		require.True(t, q.Paid)
	}

	// Paid quizzes cannot be downgraded
	{
		b, err := json.Marshal(api.CreateQuizRequest{Questions: questions, Plan: domain.PlanFree, PreviousID: premiumID})
		require.NoError(t, err)
		res, err := http.Post(httpAddr+"/api/quizzes", "application/json", bytes.NewReader(b))
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	}

	// An abandoned premium attempt is downgraded in place and loses its theme
	{
		var resp api.CreateQuizResponse
		post(t, "/api/quizzes", api.CreateQuizRequest{Questions: questions, Plan: domain.PlanPremium, CustomID: customID + "-b", Theme: "party"}, &resp)
		require.NotEmpty(t, resp.PaymentURL)

		post(t, "/api/quizzes", api.CreateQuizRequest{Questions: questions, Plan: domain.PlanFree, PreviousID: customID + "-b"}, &resp)
		require.Equal(t, customID+"-b", lastSegment(resp.QuizURL))

		var q domain.Quiz
		get(t, "/api/quizzes/"+customID+"-b", &q)
		require.Equal(t, domain.PlanFree, q.Plan)
		require.Empty(t, q.Theme)
	}

	// Scheduler trigger
	{
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpAddr+"/api/cron/cleanup", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+cronSecret)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		var c api.CleanupResponse
		require.NoError(t, json.NewDecoder(res.Body).Decode(&c))
		t.Logf("Cleanup: scanned=%d deleted=%d failed=%d", c.Scanned, c.Deleted, c.Failed)
	}
}

func post(t *testing.T, path string, body, out any) {
	b, err := json.Marshal(body)
	require.NoError(t, err)

	res, err := http.Post(httpAddr+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func get(t *testing.T, path string, out any) {
	res, err := http.Get(httpAddr + path)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func lastSegment(u string) string {
	return u[strings.LastIndex(u, "/")+1:]
}

func makeHealthClient(t *testing.T) healthpb.HealthClient {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}
