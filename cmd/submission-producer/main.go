package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/habit-scoreboard/internal/domain"
)

var ratings = []string{"easy", "moderate", "hard"}

// participant is a user and the habit they log against
type participant struct {
	userID  string
	habitID string
}

func parseParticipants(s string) ([]participant, error) {
	var out []participant
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		userID, habitID, ok := strings.Cut(pair, ":")
		if !ok || userID == "" || habitID == "" {
			return nil, fmt.Errorf("invalid participant %q, expected user_id:habit_id", pair)
		}
		out = append(out, participant{userID: userID, habitID: habitID})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no participants given")
	}
	return out, nil
}

// randomSubmission logs between 0 and 1.5 times the daily goal
func randomSubmission(p participant, date domain.Date, dailyGoal int) domain.CreateSubmissionRequest {
	ratio := rand.Float64() * 1.5
	amount := math.Round(ratio * float64(dailyGoal))
	return domain.CreateSubmissionRequest{
		UserID:          p.userID,
		HabitID:         p.habitID,
		SubmissionDate:  date.String(),
		ActualAmount:    amount,
		Points:          math.Round(amount/float64(dailyGoal)*100) / 100,
		PerceivedRating: ratings[rand.Intn(len(ratings))],
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "habit-submissions", "Kafka topic")
	participantsFlag := flag.String("participants", "", "Comma-separated user_id:habit_id pairs")
	dailyGoal := flag.Int("goal", 50, "Daily goal used to derive points from the amount")
	backfillDays := flag.Int("backfill", 14, "Days of history to generate before live updates")
	updatesPerSecond := flag.Int("rate", 5, "Live submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	backfillOnly := flag.Bool("backfill-only", false, "Only generate history, no live submissions")
	flag.Parse()

	participants, err := parseParticipants(*participantsFlag)
	if err != nil {
		log.Fatalf("Invalid -participants: %v", err)
	}
	if *dailyGoal < 1 || *updatesPerSecond < 1 {
		log.Fatalf("-goal and -rate must be at least 1")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Habit Submission Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Participants:     %d\n", len(participants))
	fmt.Printf("  Backfill days:    %d\n", *backfillDays)
	fmt.Printf("  Submissions/sec:  %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

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
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	finish := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	send := func(req domain.CreateSubmissionRequest) {
		data, err := json.Marshal(req)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(req.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	today := domain.DateOf(time.Now())

	fmt.Printf("Generating %d days of history...\n", *backfillDays)
	for d := *backfillDays; d > 0; d-- {
		date := today.AddDays(-d)
		for _, p := range participants {
			// Skip roughly one day in five so completion rates vary
			if rand.Intn(5) == 0 {
				continue
			}
			send(randomSubmission(p, date, *dailyGoal))
		}
	}
	fmt.Println("History generated")

	if *backfillOnly {
		finish()
		return
	}

	fmt.Printf("Starting live submissions (%d/sec). Press Ctrl+C to stop\n\n", *updatesPerSecond)

	ticker := time.NewTicker(time.Second / time.Duration(*updatesPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var sent int64
	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			finish()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				finish()
				return
			}
			p := participants[rand.Intn(len(participants))]
			send(randomSubmission(p, domain.DateOf(time.Now()), *dailyGoal))
			atomic.AddInt64(&sent, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Submissions: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sent),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
