package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	player := "e2e-player"

	// 1. Health Check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Quote lookup (normalizes the bare code)
	checkEndpoint("GET", "/quote/2330", nil, 200)

	// 3. Buy shares
	checkEndpoint("POST", "/trade/buy", map[string]interface{}{
		"player": player, "symbol": "2330", "shares": 2,
	}, 200)

	// 4. Portfolio, position and overview
	checkEndpoint("GET", "/portfolio/"+player, nil, 200)
	checkEndpoint("GET", "/portfolio/"+player+"/positions/2330.TW", nil, 200)
	checkEndpoint("GET", "/portfolio/"+player+"/overview", nil, 200)

	// 5. Pending input flow: arm a new-symbol prompt, then cancel it
	checkEndpoint("POST", "/players/"+player+"/pending-symbol", nil, 200)
	checkEndpoint("POST", "/players/"+player+"/input", map[string]interface{}{"text": "cancel"}, 200)

	// 6. Sell one share through the prompt, the rest via sell-all
	checkEndpoint("POST", "/portfolio/"+player+"/positions/2330/sell-prompt", nil, 200)
	checkEndpoint("POST", "/players/"+player+"/input", map[string]interface{}{"text": "1"}, 200)
	checkEndpoint("POST", "/trade/sell-all", map[string]interface{}{
		"player": player, "symbol": "2330",
	}, 200)

	// 7. Reload from disk
	checkEndpoint("POST", "/admin/reload", nil, 200)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
}
