package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"

	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/kafka"
)

// republishOrigin marks events sent by this tool so no server mistakes them for its own
const republishOrigin = "galleryctl"

// NewLikesCmd creates the likes subcommand.
func NewLikesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "likes",
		Short: "Inspect and replay like counts",
	}
	cmd.AddCommand(newLikesRepublishCmd())
	return cmd
}

// snapshotEvents turns like counts into one event per world, in a stable order
func snapshotEvents(counts map[string]int64, ids []string, now time.Time) []domain.LikeEvent {
	events := make([]domain.LikeEvent, 0, len(ids))
	for _, id := range ids {
		count, ok := counts[id]
		if !ok {
			continue
		}
		events = append(events, domain.LikeEvent{
			WorldID:   id,
			Liked:     count > 0,
			LikeCount: count,
			Timestamp: now,
			Origin:    republishOrigin,
		})
	}
	return events
}

func newLikesRepublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "republish",
		Short: "Publish the current like count of every world so all servers refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			cfg := loadConfig(logger)

			repo, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			worlds, err := repo.ListWorlds(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, len(worlds))
			for i, w := range worlds {
				ids[i] = w.ID
			}
			counts, err := repo.GetLikeCounts(cmd.Context(), ids)
			if err != nil {
				return err
			}
			events := snapshotEvents(counts, ids, time.Now())

			// Configure Sarama producer
			saramaConfig := kafka.NewProducerConfig()
			saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
			saramaConfig.Producer.Flush.Messages = 100

			producer, err := sarama.NewAsyncProducer(cfg.Kafka.Brokers, saramaConfig)
			if err != nil {
				return fmt.Errorf("creating producer: %w", err)
			}

			// Handle producer errors and successes
			var successCount, errorCount int64
			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				for range producer.Successes() {
					atomic.AddInt64(&successCount, 1)
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				for err := range producer.Errors() {
					atomic.AddInt64(&errorCount, 1)
					logger.Warn("producer error", "error", err)
				}
			}()

		send:
			for _, event := range events {
				msg, err := kafka.EncodeLikeEvent(cfg.Kafka.Topic, event)
				if err != nil {
					logger.Warn("skipping event", "world_id", event.WorldID, "error", err)
					continue
				}
				select {
				case producer.Input() <- msg:
				case <-cmd.Context().Done():
					break send
				}
			}

			producer.AsyncClose()
			wg.Wait()

			sent, failed := atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount)
			cmd.Printf("republished %d like counts, %d errors\n", sent, failed)
			if failed > 0 {
				return fmt.Errorf("%d like events were not delivered", failed)
			}
			return nil
		},
	}
}
