// Package tts provides the Doubao speech-synthesis client. Credentials come
// from the environment only; the client fails fast when they are unset.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/deskpilot/pkg/errors"
)

const (
	defaultV3URL   = "https://openspeech.bytedance.com/api/v3/tts/unidirectional"
	defaultV1URL   = "https://openspeech.bytedance.com/api/v1/tts"
	defaultVoice   = "zh_female_vv_uranus_bigtts"
	defaultTimeout = 60 * time.Second
	clientUID      = "macos-desktop-agent"
)

// voiceAliases maps friendly persona names to Doubao voice identifiers.
var voiceAliases = map[string]string{
	"调皮公主":             "saturn_zh_female_tiaopigongzhu_tob",
	"tiaopigongzhu":    "saturn_zh_female_tiaopigongzhu_tob",
	"tiaopigongzhu_tob": "saturn_zh_female_tiaopigongzhu_tob",
	"可爱公主":             "saturn_zh_female_keainvsheng_tob",
	"keainvsheng":      "saturn_zh_female_keainvsheng_tob",
	"keainvsheng_tob":  "saturn_zh_female_keainvsheng_tob",
	"vivi":             "zh_female_vv_uranus_bigtts",
	"vivi2.0":          "zh_female_vv_uranus_bigtts",
	"vivi 2.0":         "zh_female_vv_uranus_bigtts",
	"vv":               "zh_female_vv_uranus_bigtts",
}

// fallbackVoices are tried over the v1 endpoint when the requested voice
// yields no audio. Account entitlements vary per voice.
var fallbackVoices = []string{
	"zh_female_shuangkuaisisi_moon_bigtts",
	"zh_male_wennuanahu_moon_bigtts",
	"zh_female_wanwanxiaohe_moon_bigtts",
	"zh_male_jingqiangkanye_moon_bigtts",
}

// Client calls the Doubao TTS API.
type Client struct {
	appID      string
	token      string
	resourceID string
	cluster    string
	voice      string
	v3URL      string
	v1URL      string
	httpClient *http.Client
}

// Option adjusts client construction, used by tests to point at fakes.
type Option func(*Client)

// WithEndpoints overrides the v3 and v1 API URLs.
func WithEndpoints(v3URL, v1URL string) Option {
	return func(c *Client) {
		c.v3URL = v3URL
		c.v1URL = v1URL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClientFromEnv builds a client from DOUBAO_APP_ID, DOUBAO_ACCESS_TOKEN,
// DOUBAO_RESOURCE_ID, DOUBAO_CLUSTER and DOUBAO_VOICE_TYPE.
func NewClientFromEnv(opts ...Option) *Client {
	c := &Client{
		appID:      strings.TrimSpace(os.Getenv("DOUBAO_APP_ID")),
		token:      strings.TrimSpace(os.Getenv("DOUBAO_ACCESS_TOKEN")),
		resourceID: strings.TrimSpace(os.Getenv("DOUBAO_RESOURCE_ID")),
		cluster:    strings.TrimSpace(os.Getenv("DOUBAO_CLUSTER")),
		voice:      strings.TrimSpace(os.Getenv("DOUBAO_VOICE_TYPE")),
		v3URL:      defaultV3URL,
		v1URL:      defaultV1URL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient builds a client with explicit credentials.
func NewClient(appID, token string, opts ...Option) *Client {
	c := &Client{
		appID:      appID,
		token:      token,
		v3URL:      defaultV3URL,
		v1URL:      defaultV1URL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func apiError(msg string) *errors.Error {
	return errors.New(errors.ErrCodeTTSAPIError, msg).WithUserMessage(msg)
}

// resolveVoice applies the alias map and infers a resource id for known
// voice families when none is configured.
func (c *Client) resolveVoice(requested string) (voice, resourceID string) {
	voice = strings.TrimSpace(requested)
	if voice == "" {
		voice = c.voice
	}
	if voice == "" {
		voice = defaultVoice
	}
	if mapped, ok := voiceAliases[voice]; ok {
		voice = mapped
	}
	resourceID = c.resourceID
	if resourceID == "" {
		switch {
		case strings.HasPrefix(voice, "saturn_"):
			resourceID = "seed-tts-2.0"
		case strings.Contains(voice, "uranus") || strings.HasSuffix(voice, "bigtts"):
			resourceID = "seed-tts-1.0"
		}
	}
	return voice, resourceID
}

func audioPayload(voice string) map[string]any {
	speed, volume, pitch := 1.0, 1.0, 1.0
	if !strings.HasPrefix(voice, "saturn_") {
		speed, volume, pitch = 0.95, 1.1, 1.05
	}
	return map[string]any{
		"voice_type":   voice,
		"encoding":     "mp3",
		"rate":         24000,
		"sample_rate":  24000,
		"speed_ratio":  speed,
		"volume_ratio": volume,
		"pitch_ratio":  pitch,
	}
}

// Synthesize renders text to audio and returns the bytes plus a format label
// such as "mp3". An empty voiceType uses the configured default.
func (c *Client) Synthesize(ctx context.Context, text, voiceType string) ([]byte, string, error) {
	if c.appID == "" || c.token == "" {
		return nil, "", errors.New(errors.ErrCodeTTSAPIError, "missing credentials").
			WithUserMessage("缺少豆包TTS的APPID或Access Token").
			WithRemediation("set DOUBAO_APP_ID and DOUBAO_ACCESS_TOKEN")
	}

	voice, resourceID := c.resolveVoice(voiceType)
	request := map[string]any{
		"reqid":     uuid.NewString(),
		"text":      text,
		"text_type": "plain",
		"operation": "query",
	}

	// Without an explicit resource id the v1 cluster endpoint is the safer
	// default; v3 rejects mismatched resource/voice pairs outright.
	if c.resourceID == "" {
		return c.synthesizeV1(ctx, voice, request)
	}

	raw, contentType, status, err := c.callV3(ctx, voice, resourceID, request)
	if err != nil {
		return nil, "", err
	}
	audio, format, err := c.decodeAudio(ctx, raw, contentType, status)
	if err == nil {
		return audio, format, nil
	}
	if strings.Contains(err.Error(), "resource ID is mismatched") {
		return c.synthesizeV1(ctx, voice, request)
	}
	return nil, "", err
}

// synthesizeV1 walks the requested voice plus the fallback list until one
// yields audio.
func (c *Client) synthesizeV1(ctx context.Context, voice string, request map[string]any) ([]byte, string, error) {
	candidates := []string{voice}
	for _, v := range fallbackVoices {
		if v != voice {
			candidates = append(candidates, v)
		}
	}

	var lastErr error
	for _, v := range candidates {
		raw, contentType, status, err := c.callV1(ctx, v, request)
		if err != nil {
			return nil, "", err
		}
		audio, format, err := c.decodeAudio(ctx, raw, contentType, status)
		if err == nil {
			return audio, format, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func (c *Client) callV3(ctx context.Context, voice, resourceID string, request map[string]any) ([]byte, string, int, error) {
	app := map[string]any{"appid": c.appID}
	if c.cluster != "" {
		app["cluster"] = c.cluster
	}
	payload := map[string]any{
		"app":     app,
		"user":    map[string]any{"uid": clientUID},
		"audio":   audioPayload(voice),
		"request": request,
	}
	headers := map[string]string{
		"Content-Type":     "application/json",
		"X-Api-App-Id":     c.appID,
		"X-Api-Access-Key": c.token,
		"X-Api-Resource-Id": resourceID,
		"X-Api-Request-Id": uuid.NewString(),
	}
	return c.post(ctx, c.v3URL, payload, headers)
}

func (c *Client) callV1(ctx context.Context, voice string, request map[string]any) ([]byte, string, int, error) {
	cluster := c.cluster
	if cluster == "" {
		cluster = "volcano_tts"
	}
	payload := map[string]any{
		"app":     map[string]any{"appid": c.appID, "token": c.token, "cluster": cluster},
		"user":    map[string]any{"uid": clientUID},
		"audio":   audioPayload(voice),
		"request": request,
	}
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer;" + c.token,
	}
	return c.post(ctx, c.v1URL, payload, headers)
}

// post sends the payload and returns the body even on non-2xx statuses; the
// API reports failures as JSON bodies with error codes.
func (c *Client) post(ctx context.Context, url string, payload map[string]any, headers map[string]string) ([]byte, string, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", 0, errors.Wrap(err, errors.ErrCodeTTSAPIError, "marshaling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", 0, errors.Wrap(err, errors.ErrCodeTTSAPIError, "creating request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, errors.Wrap(err, errors.ErrCodeTTSAPIError, "speech request failed")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, errors.Wrap(err, errors.ErrCodeTTSAPIError, "reading response")
	}
	return raw, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

// decodeAudio interprets one API response: a JSON envelope carrying base64
// audio or an audio URL, or raw audio bytes.
func (c *Client) decodeAudio(ctx context.Context, raw []byte, contentType string, status int) ([]byte, string, error) {
	data := parseJSON(raw, contentType)
	if data == nil {
		if status >= 400 {
			return nil, "", apiError(fmt.Sprintf("豆包TTS请求失败：HTTP %d", status)).
				WithContext("body", string(raw))
		}
		return raw, formatFromContentType(contentType), nil
	}

	if encoded := extractAudio(data); encoded != "" {
		if strings.HasPrefix(encoded, "http") {
			return c.downloadAudio(ctx, encoded)
		}
		audio, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrCodeTTSAPIError, "decoding audio payload")
		}
		return audio, "mp3", nil
	}

	message := "豆包TTS调用失败"
	if m, ok := data["message"].(string); ok && m != "" {
		message = m
	}
	return nil, "", apiError(message).WithContext("status", status)
}

func (c *Client) downloadAudio(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeTTSAPIError, "creating download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeTTSAPIError, "downloading audio")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeTTSAPIError, "reading audio")
	}
	if resp.StatusCode >= 400 {
		return nil, "", apiError("豆包TTS音频下载失败").WithContext("status", resp.StatusCode)
	}
	return raw, formatFromContentType(resp.Header.Get("Content-Type")), nil
}

func formatFromContentType(contentType string) string {
	if idx := strings.Index(contentType, "audio/"); idx >= 0 {
		format := strings.TrimSpace(strings.SplitN(contentType[idx+len("audio/"):], ";", 2)[0])
		if format != "" {
			return format
		}
	}
	return "mp3"
}

func parseJSON(raw []byte, contentType string) map[string]any {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if !strings.Contains(contentType, "application/json") &&
		(len(trimmed) == 0 || trimmed[0] != '{') {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}

// extractAudio walks the response envelope looking for base64 audio or an
// audio URL. The API nests audio under different keys per endpoint version.
func extractAudio(data map[string]any) string {
	for _, key := range []string{"audio", "audio_base64"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	switch inner := data["data"].(type) {
	case string:
		if inner != "" {
			return inner
		}
	case map[string]any:
		if found := extractAudio(inner); found != "" {
			return found
		}
	case []any:
		for _, item := range inner {
			if m, ok := item.(map[string]any); ok {
				if found := extractAudio(m); found != "" {
					return found
				}
			}
		}
	}
	for _, key := range []string{"speech", "result"} {
		if m, ok := data[key].(map[string]any); ok {
			if found := extractAudio(m); found != "" {
				return found
			}
		}
	}
	if s, ok := data["audio_url"].(string); ok {
		return s
	}
	return ""
}
