package controller

import (
	"math"
	"testing"

	"github.com/tejusbharadwaj/simdash/internal/models"
)

func TestValidate(t *testing.T) {
	weather := &models.FileHandle{Name: "w.epw", Data: []byte("epw")}
	model := &models.FileHandle{Name: "m.idf", Data: []byte("idf")}

	tests := []struct {
		name       string
		request    models.SimulationRequest
		wantErr    bool
		errMessage string
	}{
		{
			name:    "model and weather",
			request: models.SimulationRequest{BuildingModel: model, Weather: weather},
		},
		{
			name:    "dimensions and weather",
			request: models.SimulationRequest{Weather: weather, Dimensions: models.Dimensions{Length: 1, Width: 2, Height: 3}},
		},
		{
			name: "model wins over bad dimensions",
			request: models.SimulationRequest{
				BuildingModel: model,
				Weather:       weather,
				Dimensions:    models.Dimensions{Length: -1},
			},
		},
		{
			name:       "missing weather",
			request:    models.SimulationRequest{BuildingModel: model, Dimensions: models.Dimensions{Length: 1, Width: 2, Height: 3}},
			wantErr:    true,
			errMessage: ReasonWeatherRequired,
		},
		{
			name:       "empty model counts as absent",
			request:    models.SimulationRequest{BuildingModel: &models.FileHandle{Name: "m.idf"}, Weather: weather},
			wantErr:    true,
			errMessage: ReasonModelOrDimensions,
		},
		{
			name: "empty model falls back to dimensions",
			request: models.SimulationRequest{
				BuildingModel: &models.FileHandle{Name: "m.idf"},
				Weather:       weather,
				Dimensions:    models.Dimensions{Length: 1, Width: 2, Height: 3},
			},
		},
		{
			name:    "empty weather file is still present",
			request: models.SimulationRequest{Weather: &models.FileHandle{Name: "w.epw"}, BuildingModel: model},
		},
		{
			name:       "missing height",
			request:    models.SimulationRequest{Weather: weather, Dimensions: models.Dimensions{Length: 1, Width: 2}},
			wantErr:    true,
			errMessage: ReasonModelOrDimensions,
		},
		{
			name:       "zero dimensions",
			request:    models.SimulationRequest{Weather: weather},
			wantErr:    true,
			errMessage: ReasonModelOrDimensions,
		},
		{
			name:       "negative dimension",
			request:    models.SimulationRequest{Weather: weather, Dimensions: models.Dimensions{Length: 1, Width: 2, Height: -3}},
			wantErr:    true,
			errMessage: ReasonPositiveDimensions,
		},
		{
			name:       "infinite dimension",
			request:    models.SimulationRequest{Weather: weather, Dimensions: models.Dimensions{Length: math.Inf(1), Width: 2, Height: 3}},
			wantErr:    true,
			errMessage: ReasonPositiveDimensions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.request)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMessage {
				t.Errorf("Validate() error message = %v, want %v", err.Error(), tt.errMessage)
			}
		})
	}
}
