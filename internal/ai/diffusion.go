package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"
)

const (
	videoPollAttempts = 60
	videoPollInterval = 5 * time.Second
)

type imageRequest struct {
	Instances []struct {
		Prompt string `json:"prompt"`
	} `json:"instances"`
	Parameters struct {
		SampleCount int `json:"sampleCount"`
	} `json:"parameters"`
}

type imageResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

// GenerateImage produces one image for the prompt, trying the primary model
// first and falling back to the alternate when the primary is unavailable.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	if !c.Enabled() {
		return nil, "", ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("ai rate wait: %w", err)
	}

	data, mime, err := c.generateImageWith(ctx, c.cfg.ImageModel, prompt)
	if err == nil {
		return data, mime, nil
	}
	if c.cfg.ImageModelAlt == "" || c.cfg.ImageModelAlt == c.cfg.ImageModel {
		return nil, "", err
	}
	log.Printf("ai: image model %s failed, trying %s: %v", c.cfg.ImageModel, c.cfg.ImageModelAlt, err)
	return c.generateImageWith(ctx, c.cfg.ImageModelAlt, prompt)
}

func (c *Client) generateImageWith(ctx context.Context, model, prompt string) ([]byte, string, error) {
	var req imageRequest
	req.Instances = append(req.Instances, struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt})
	req.Parameters.SampleCount = 1

	var resp imageResponse
	if err := c.post(ctx, c.modelPath(model, "predict"), req, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Predictions) == 0 || resp.Predictions[0].BytesBase64Encoded == "" {
		return nil, "", fmt.Errorf("ai: no image in response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, "", fmt.Errorf("ai: decode image: %w", err)
	}
	mime := resp.Predictions[0].MimeType
	if mime == "" {
		mime = "image/png"
	}
	return data, mime, nil
}

type videoOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// GenerateVideo starts a long-running video generation and polls until the
// operation finishes or the polling budget is spent. A spent budget is
// ErrTimedOut; access problems surface as ErrAccessDenied so callers can
// tell the user which failure they are looking at.
func (c *Client) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ai rate wait: %w", err)
	}

	start := map[string]any{
		"instances": []map[string]any{{"prompt": prompt}},
		"parameters": map[string]any{
			"sampleCount": 1,
		},
	}
	var op videoOperation
	if err := c.post(ctx, c.modelPath(c.cfg.VideoModel, "predictLongRunning"), start, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("ai: video operation has no name")
	}

	for attempt := 0; attempt < videoPollAttempts && !op.Done; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(videoPollInterval):
		}
		if err := c.get(ctx, fmt.Sprintf("%s/v1beta/%s", c.cfg.BaseURL, op.Name), &op); err != nil {
			return "", err
		}
	}
	if !op.Done {
		return "", ErrTimedOut
	}

	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		return "", fmt.Errorf("ai: no video in finished operation")
	}
	return samples[0].Video.URI, nil
}
