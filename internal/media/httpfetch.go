package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPCredentialFetcher obtains room credentials from the platform token
// endpoint. The access token authenticates the local user; the endpoint
// decides whether that user belongs in the requested room.
type HTTPCredentialFetcher struct {
	endpoint    string
	accessToken func() string
	client      *http.Client
}

// NewHTTPCredentialFetcher builds a fetcher. accessToken is called per
// request so refreshed tokens are picked up.
func NewHTTPCredentialFetcher(endpoint string, accessToken func() string) *HTTPCredentialFetcher {
	return &HTTPCredentialFetcher{
		endpoint:    endpoint,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenRequest struct {
	RoomName        string `json:"room_name"`
	ParticipantName string `json:"participant_name"`
	CanPublish      bool   `json:"can_publish"`
	CanSubscribe    bool   `json:"can_subscribe"`
}

type tokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (f *HTTPCredentialFetcher) FetchCredential(ctx context.Context, roomName, identity, displayName string) (Credential, error) {
	if identity == "" {
		return Credential{}, errors.New("not authenticated")
	}
	if roomName == "" {
		return Credential{}, ErrInvalidArgument
	}

	body, err := json.Marshal(tokenRequest{
		RoomName:        roomName,
		ParticipantName: displayName,
		CanPublish:      true,
		CanSubscribe:    true,
	})
	if err != nil {
		return Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.accessToken())

	resp, err := f.client.Do(req)
	if err != nil {
		return Credential{}, err
	}
	defer resp.Body.Close()

	var out tokenResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return Credential{}, errors.New(out.Error)
		}
		return Credential{}, fmt.Errorf("token request failed: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return Credential{}, decodeErr
	}
	if out.Token == "" || out.URL == "" {
		return Credential{}, errors.New("invalid token response")
	}
	return Credential{Token: out.Token, URL: out.URL}, nil
}
