// Package http exposes the reading service over JSON.
//
// Routes:
//   - POST /accounts, POST /tokens: sign-up and sign-in. Tokens are bearer JWTs.
//   - GET /me: the caller's points, stored rank and live rank.
//   - POST /sessions, GET /sessions/active: start and inspect the caller's
//     reading session.
//   - POST /sessions/{id}/complete, /verify, /disconnect: session lifecycle.
//   - GET /leaderboard?limit=N: masked ranking.
//   - POST /payments, POST /payments/{reference}/verify: checkout and
//     settlement through the payment provider.
//   - POST /webhooks/paystack: signed provider notifications.
//   - GET /healthz, GET /metrics: operations endpoints.
//
// Errors are returned as {"error_code","message","errors"} where error_code is
// the application error kind.
package http
