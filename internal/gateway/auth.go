package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
)

// authed attaches the API-key/HMAC-signature headers the exchange requires
// for any private (account or trading) endpoint. body is marshaled to JSON
// for both the signature and the outgoing request when non-nil.
func (g *RESTClient) authed(ctx context.Context, method, path string, body any) *resty.Request {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(ts + method + path + string(payload)))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := g.http.R().SetContext(ctx).
		SetHeader("OK-ACCESS-KEY", g.apiKey).
		SetHeader("OK-ACCESS-SIGN", sign).
		SetHeader("OK-ACCESS-TIMESTAMP", ts).
		SetHeader("OK-ACCESS-PASSPHRASE", g.passphrase).
		SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}
	return req
}
