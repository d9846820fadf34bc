package devserver

import (
	"context"
	"errors"

	"geo-insight/internal/simulator"
)

// Feed publica as amostras do simulador no dataset até o contexto
// terminar. Alertas de limite seguem logo após a amostra que os gerou.
func (s *Server) Feed(ctx context.Context, datasetID string, sim *simulator.Simulator) error {
	if !s.serves(datasetID) {
		return ErrUnknownDataset
	}

	logger := s.logger.With().Str("dataset", datasetID).Logger()
	logger.Info().Msg("feeding dataset from simulator")

	var publishErr error
	err := sim.Stream(ctx, func(sample simulator.Sample) {
		rec := Record{
			Payload:    sample.Payload,
			SensorID:   sample.SensorID,
			SensorType: sample.SensorType,
			Time:       sample.Time,
		}
		if err := s.Publish(datasetID, rec); err != nil {
			logger.Error().Err(err).Msg("publish sample")
			publishErr = errors.Join(publishErr, err)
			return
		}
		if sample.Alert != nil {
			if err := s.PublishAlert(datasetID, *sample.Alert); err != nil {
				logger.Error().Err(err).Msg("publish alert")
			}
		}
	})
	if err != nil {
		return err
	}
	return publishErr
}
