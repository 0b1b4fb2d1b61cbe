package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/examprep/examprep-backend/internal/config"
	"github.com/examprep/examprep-backend/internal/database"
	"github.com/examprep/examprep-backend/internal/logger"
	"github.com/examprep/examprep-backend/internal/model"
	"github.com/examprep/examprep-backend/internal/repository"
	"github.com/examprep/examprep-backend/internal/service"
	"github.com/xuri/excelize/v2"
)

// sampleRows is written to a workbook when no -file is given.
var sampleRows = [][]any{
	{"What is 7 x 8?", "multiple_choice", "54|56|58|64", "B", 1},
	{"The square root of 144 is 12.", "true_false", "", "true", 1},
	{"Solve for x: 2x + 6 = 14", "short_answer", "", "4|x=4|x = 4", 2},
	{"A triangle has ___ sides and ___ angles.", "fill_blanks", "", "3|three;3|three", 2},
	{"Explain why division by zero is undefined.", "essay", "", "", 5},
}

func main() {
	title := flag.String("title", "Sample Mathematics Exam", "Exam title")
	duration := flag.Int("duration", 30, "Exam duration in minutes")
	price := flag.Int64("price", 0, "Price in minor currency units (0 is free)")
	author := flag.String("author", "", "Email of the admin who owns the exam")
	file := flag.String("file", "", "XLSX question sheet (defaults to a generated sample)")
	publish := flag.Bool("publish", true, "Publish the exam after import")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *author == "" {
		log.Fatal().Msg("-author is required")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	examService := service.NewExamService(examRepo, questionRepo, attemptRepo, rdb, log)
	questionService := service.NewQuestionService(examRepo, questionRepo, log)

	owner, err := userRepo.GetByEmail(ctx, *author)
	if err != nil {
		log.Fatal().Err(err).Str("email", *author).Msg("Failed to find author")
	}
	if owner.Role != model.RoleAdmin {
		log.Fatal().Str("email", *author).Msg("Author must be an admin")
	}

	sheet, err := openSheet(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare question sheet")
	}

	exam, err := examService.Create(ctx, owner.ID, &model.CreateExamRequest{
		Title:        *title,
		Description:  "Seeded exam",
		Duration:     *duration,
		PassingScore: 50,
		MaxAttempts:  3,
		Price:        *price,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s (%s)\n", exam.Title, exam.ID)

	report, err := questionService.ImportXLSX(ctx, exam.ID, sheet)
	if err != nil {
		if errors.Is(err, service.ErrImportRejected) && report != nil {
			for _, e := range report.Errors {
				fmt.Printf("  row %d: %s\n", e.Row, e.Error)
			}
		}
		log.Fatal().Err(err).Msg("Failed to import questions")
	}
	fmt.Printf("Imported %d/%d questions\n", report.Imported, report.TotalRows)

	if *publish {
		if _, err := examService.Publish(ctx, exam.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish exam")
		}
		fmt.Println("Exam published")
	}
}

func openSheet(path string) (io.Reader, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(raw), nil
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	header := make([]any, len(service.ImportColumns))
	for i, col := range service.ImportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range sampleRows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf.Bytes()), nil
}
