package main

import "time"

// ForecastSample é uma amostra da previsão do tempo
type ForecastSample struct {
	Timestamp    time.Time `json:"timestamp"`
	Temperature  float64   `json:"temperature"`
	RainObserved bool      `json:"rain_observed"`
}

// EvaluateConditions decide se a amostra atende às condições exigidas.
// O limite de temperatura é inclusivo.
func EvaluateConditions(sample ForecastSample, required RequiredConditions) bool {
	temperatureOK := sample.Temperature >= required.MinimumTemperatureCelsius
	rainOK := !required.RainDisallowed || !sample.RainObserved
	return temperatureOK && rainOK
}
