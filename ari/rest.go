package ari

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log15 "github.com/inconshreveable/log15"
	"github.com/rotisserie/eris"
)

const restTimeout = 10 * time.Second

// restClient issues authenticated JSON requests against the ARI REST
// surface (spec §4.B). A single restClient is shared by the REST helper
// methods on Client and by the event pump's eventFilter negotiation.
type restClient struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	log        log15.Logger
}

func newRESTClient(host, port, user, password string, log log15.Logger) *restClient {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return &restClient{
		baseURL:    fmt.Sprintf("http://%s:%s/ari", host, port),
		authHeader: "Basic " + token,
		httpClient: &http.Client{Timeout: restTimeout},
		log:        log,
	}
}

// request implements the status-handling contract of spec §4.B:
// 200/201 with a body -> decoded JSON; 2xx with an empty body -> nil, no
// error; 500 -> error carrying path/status/reason/body; any other
// non-success -> nil, debug-logged, no error (caller discretion).
func (r *restClient) request(method, path string, query url.Values, body any) (map[string]any, error) {
	fullPath := r.baseURL + path
	if len(query) > 0 {
		fullPath += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, eris.Wrapf(err, "encode request body for %s", path)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, fullPath, bodyReader)
	if err != nil {
		return nil, eris.Wrapf(err, "build request for %s", path)
	}
	req.Header.Set("Authorization", r.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "request %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "read response body for %s", path)
	}

	switch {
	case len(data) > 0 && (resp.StatusCode == 200 || resp.StatusCode == 201):
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, eris.Wrapf(err, "decode response body for %s", path)
		}
		return decoded, nil
	case resp.StatusCode == 500:
		return nil, eris.Errorf("ari request %s %s: status %d %s: %s", method, path, resp.StatusCode, resp.Status, string(data))
	default:
		r.log.Debug("non-success response", "path", path, "status", resp.StatusCode, "body", string(data))
		return nil, nil
	}
}

func (r *restClient) get(path string, query url.Values) (map[string]any, error) {
	return r.request(http.MethodGet, path, query, nil)
}

func (r *restClient) post(path string, query url.Values, body any) (map[string]any, error) {
	return r.request(http.MethodPost, path, query, body)
}

func (r *restClient) delete(path string) (map[string]any, error) {
	return r.request(http.MethodDelete, path, nil, nil)
}

func (r *restClient) put(path string, body any) (map[string]any, error) {
	return r.request(http.MethodPut, path, nil, body)
}

// ---- ARI endpoint surface (one method per spec §4.B entry) ----

func (c *Client) channels() (map[string]any, error) {
	return c.rest.get("/channels", nil)
}

func (c *Client) createChannel(channelID, endpoint, callerID string, variables map[string]any, timeout int) (*Channel, error) {
	q := url.Values{
		"endpoint": {endpoint},
		"app":      {c.app},
		"callerId": {callerID},
		"timeout":  {strconv.Itoa(timeout)},
	}
	if variables == nil {
		variables = map[string]any{}
	}
	resp, err := c.rest.post(fmt.Sprintf("/channels/%s", channelID), q, map[string]any{"variables": variables})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return c.registry.channels.getOrCreate(resp), nil
}

func (c *Client) recordChannel(channelID, recordName, format string) error {
	if format == "" {
		format = "wav"
	}
	_, err := c.rest.post(fmt.Sprintf("/channels/%s/record", channelID), url.Values{"name": {recordName}, "format": {format}}, nil)
	return err
}

func (c *Client) playChannel(channelID, media string) (*Playback, error) {
	resp, err := c.rest.post(fmt.Sprintf("/channels/%s/play", channelID), url.Values{"media": {media}}, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return c.registry.playbacks.getOrCreate(resp), nil
}

func (c *Client) ringChannel(channelID string) error {
	_, err := c.rest.post(fmt.Sprintf("/channels/%s/ring", channelID), nil, nil)
	return err
}

func (c *Client) stopRingChannel(channelID string) error {
	_, err := c.rest.request(http.MethodDelete, fmt.Sprintf("/channels/%s/ring", channelID), nil, nil)
	return err
}

func (c *Client) closeChannel(channelID string) error {
	_, err := c.rest.delete(fmt.Sprintf("/channels/%s", channelID))
	return err
}

func (c *Client) externalMedia(host string, port int, format, channelID string) (*Channel, error) {
	if format == "" {
		format = "slin16"
	}
	body := map[string]any{
		"external_host": fmt.Sprintf("%s:%d", host, port),
		"app":           c.app,
		"format":        format,
	}
	if channelID != "" {
		body["channelId"] = channelID
	}
	resp, err := c.rest.post("/channels/externalMedia", nil, body)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return c.registry.channels.getOrCreate(resp), nil
}

func (c *Client) startSnoop(channelID string) (*Channel, error) {
	body := map[string]any{"app": c.app, "spy": "in"}
	resp, err := c.rest.post(fmt.Sprintf("/channels/%s/snoop", channelID), nil, body)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	snoop := c.registry.channels.getOrCreate(resp)
	if parent, ok := c.registry.channels.get(channelID); ok {
		parent.addSnoopChild(snoop.ID())
	}
	return snoop, nil
}

func (c *Client) answer(channelID string) error {
	_, err := c.rest.post(fmt.Sprintf("/channels/%s/answer", channelID), nil, nil)
	return err
}

func (c *Client) bridges() (map[string]any, error) {
	return c.rest.get("/bridges", nil)
}

func (c *Client) createBridge() (*Bridge, error) {
	resp, err := c.rest.post("/bridges", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return c.registry.bridges.getOrCreate(resp), nil
}

func (c *Client) closeBridge(bridgeID string) error {
	_, err := c.rest.delete(fmt.Sprintf("/bridges/%s", bridgeID))
	return err
}

func (c *Client) mohBridge(bridgeID, mohClass string) error {
	_, err := c.rest.post(fmt.Sprintf("/bridges/%s/moh", bridgeID), url.Values{"mohClass": {mohClass}}, nil)
	return err
}

func (c *Client) stopMohBridge(bridgeID string) error {
	_, err := c.rest.request(http.MethodDelete, fmt.Sprintf("/bridges/%s/moh", bridgeID), nil, nil)
	return err
}

func (c *Client) addToBridge(bridgeID string, channelIDs []string) error {
	_, err := c.rest.post(fmt.Sprintf("/bridges/%s/addChannel", bridgeID), url.Values{"channel": {joinComma(channelIDs)}}, nil)
	return err
}

func (c *Client) removeFromBridge(bridgeID string, channelIDs []string) error {
	_, err := c.rest.post(fmt.Sprintf("/bridges/%s/removeChannel", bridgeID), url.Values{"channel": {joinComma(channelIDs)}}, nil)
	return err
}

func (c *Client) recordBridge(bridgeID, recordName, format string) error {
	if format == "" {
		format = "wav"
	}
	_, err := c.rest.post(fmt.Sprintf("/bridges/%s/record", bridgeID), url.Values{"name": {recordName}, "format": {format}}, nil)
	return err
}

func (c *Client) playBridge(bridgeID, media string) (*Playback, error) {
	resp, err := c.rest.post(fmt.Sprintf("/bridges/%s/play", bridgeID), url.Values{"media": {media}}, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return c.registry.playbacks.getOrCreate(resp), nil
}

func (c *Client) playSilence(bridgeID string, seconds int) (*Playback, error) {
	media := fmt.Sprintf("sound:silence/%d", seconds)
	resp, err := c.rest.post(fmt.Sprintf("/bridges/%s/play", bridgeID), url.Values{"media": {media}}, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return c.registry.playbacks.getOrCreate(resp), nil
}

func (c *Client) closePlayback(playbackID string) error {
	_, err := c.rest.delete(fmt.Sprintf("/playbacks/%s", playbackID))
	return err
}

func (c *Client) controlPlayback(playbackID, operation string) error {
	_, err := c.rest.post(fmt.Sprintf("/playbacks/%s/control", playbackID), url.Values{"operation": {operation}}, nil)
	return err
}

func (c *Client) filterEvents(eventTypes []string) error {
	allowed := make([]map[string]string, 0, len(eventTypes))
	for _, t := range eventTypes {
		allowed = append(allowed, map[string]string{"type": t})
	}
	_, err := c.rest.put(fmt.Sprintf("/applications/%s/eventFilter", c.app), map[string]any{"allowed": allowed})
	return err
}

func (c *Client) listApps() (map[string]any, error) {
	return c.rest.get("/applications", nil)
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
