package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rankshop-api/internal/config"
	"rankshop-api/internal/ranks"
	"rankshop-api/pkg/logging"
)

// MinecraftClient talks to the plugin HTTP API exposed by each game-server
// backend. Realm-tagged ranks go only to their realm's backend; everything
// else is broadcast to the whole fleet.
type MinecraftClient struct {
	servers    []config.GameServer
	apiKey     string
	httpClient *http.Client
}

// NewMinecraftClient creates a new fleet client
func NewMinecraftClient() *MinecraftClient {
	return &MinecraftClient{
		servers: config.AppConfig.GameServers,
		apiKey:  config.AppConfig.GameServerAPIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type applyRankRequest struct {
	Username string `json:"username"`
	RankID   string `json:"rankId"`
}

type applyRankResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type playerExistsResponse struct {
	Exists bool `json:"exists"`
}

// targetsFor returns the backends a rank should be applied on
func (c *MinecraftClient) targetsFor(rank *ranks.Rank) []config.GameServer {
	if rank == nil || rank.Realm == "" {
		return c.servers
	}

	var targets []config.GameServer
	for _, server := range c.servers {
		if server.Realm == string(rank.Realm) {
			targets = append(targets, server)
		}
	}
	return targets
}

// ApplyRank pushes a rank grant to the fleet. Succeeds when at least one
// backend accepts the grant; every backend is tried even after a success so
// all of them converge in the same pass.
func (c *MinecraftClient) ApplyRank(playerName, rankID string) bool {
	rank := ranks.GetRankByID(rankID)
	targets := c.targetsFor(rank)

	if len(targets) == 0 {
		logging.Errorf("No backend serves rank %s, cannot apply for %s", rankID, playerName)
		return false
	}

	applied := false
	for _, server := range targets {
		if err := c.applyOnServer(server, playerName, rankID); err != nil {
			logging.Errorf("Failed to apply rank on %s - player: %s, rank: %s, error: %v",
				server.Name, playerName, rankID, err)
			continue
		}
		applied = true
	}

	return applied
}

// applyOnServer applies the rank on one backend, failing closed on any
// transport or application error
func (c *MinecraftClient) applyOnServer(server config.GameServer, playerName, rankID string) error {
	payload, err := json.Marshal(applyRankRequest{Username: playerName, RankID: rankID})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, server.APIURL+"/api/apply-rank", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var result applyRankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("backend rejected grant: %s", result.Message)
	}

	return nil
}

// CheckPlayerExists asks the proxy whether a username is known to the network
func (c *MinecraftClient) CheckPlayerExists(playerName string) (bool, error) {
	proxy := c.proxyServer()
	if proxy == nil {
		return false, fmt.Errorf("no proxy backend configured")
	}

	req, err := http.NewRequest(http.MethodGet, proxy.APIURL+"/api/player/"+playerName, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("proxy returned status %d", resp.StatusCode)
	}

	var result playerExistsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Exists, nil
}

func (c *MinecraftClient) proxyServer() *config.GameServer {
	for i := range c.servers {
		if c.servers[i].Name == "proxy" {
			return &c.servers[i]
		}
	}
	return nil
}
