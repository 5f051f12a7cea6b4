package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ForecastProvider abstrai o provedor de previsão do tempo
type ForecastProvider interface {
	GetForecast(ctx context.Context, lat, lon float64) ([]ForecastSample, error)
}

// NearestSample escolhe a amostra mais próxima de target. Em empate vence a mais antiga.
func NearestSample(samples []ForecastSample, target time.Time) (ForecastSample, error) {
	if len(samples) == 0 {
		return ForecastSample{}, ErrForecastUnavailable
	}

	best := samples[0]
	bestDiff := absDuration(best.Timestamp.Sub(target))
	for _, s := range samples[1:] {
		diff := absDuration(s.Timestamp.Sub(target))
		if diff < bestDiff || (diff == bestDiff && s.Timestamp.Before(best.Timestamp)) {
			best = s
			bestDiff = diff
		}
	}
	return best, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// OpenWeatherClient busca a previsão de 5 dias / 3 horas da OpenWeather
type OpenWeatherClient struct {
	client *resty.Client
	apiKey string
}

// NewOpenWeatherClient cria o cliente HTTP da OpenWeather
func NewOpenWeatherClient(baseURL, apiKey string, timeout time.Duration) *OpenWeatherClient {
	return &OpenWeatherClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			ForceContentType("application/json"),
		apiKey: apiKey,
	}
}

type openWeatherResponse struct {
	List []openWeatherItem `json:"list"`
}

type openWeatherItem struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain *struct {
		ThreeHours float64 `json:"3h"`
	} `json:"rain,omitempty"`
}

func (item openWeatherItem) hasRain() bool {
	if item.Rain != nil && item.Rain.ThreeHours > 0 {
		return true
	}
	for _, w := range item.Weather {
		if strings.Contains(strings.ToLower(w.Main), "rain") ||
			strings.Contains(strings.ToLower(w.Description), "rain") {
			return true
		}
	}
	return false
}

// GetForecast busca a série de previsões das coordenadas, em unidades métricas
func (c *OpenWeatherClient) GetForecast(ctx context.Context, lat, lon float64) ([]ForecastSample, error) {
	var body openWeatherResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(lat, 'f', -1, 64),
			"lon":   strconv.FormatFloat(lon, 'f', -1, 64),
			"appid": c.apiKey,
			"units": "metric",
		}).
		SetResult(&body).
		Get("/forecast")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forecast: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch forecast: status %d: %s", resp.StatusCode(), resp.String())
	}

	samples := make([]ForecastSample, 0, len(body.List))
	for _, item := range body.List {
		samples = append(samples, ForecastSample{
			Timestamp:    time.Unix(item.Dt, 0).UTC(),
			Temperature:  item.Main.Temp,
			RainObserved: item.hasRain(),
		})
	}
	return samples, nil
}
