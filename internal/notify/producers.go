package notify

import (
	"context"
	"fmt"

	"campus-notify-go/internal/models"
)

// Typed publish helpers for the producer modules (marks entry, results,
// grievance workflow, notices, answer-sheet uploads). Each is
// fire-and-forget from the producer's point of view: the returned error
// only signals that the durable record could not be created.

func (s *Service) PublishMarksUploaded(ctx context.Context, recipientID int, subject, exam string, marks int, facultyName string) error {
	title := fmt.Sprintf("New Marks: %s", subject)
	body := fmt.Sprintf("Your marks for %s - %s have been uploaded by %s. Score: %d", subject, exam, facultyName, marks)
	_, err := s.Publish(ctx, recipientID, models.CategoryMarks, title, body, 0)
	return err
}

func (s *Service) PublishResultPublished(ctx context.Context, recipientID int, exam string) error {
	title := fmt.Sprintf("Results Published: %s", exam)
	body := fmt.Sprintf("The results for %s have been officially published. Check your results now!", exam)
	_, err := s.Publish(ctx, recipientID, models.CategoryResult, title, body, 0)
	return err
}

func (s *Service) PublishGrievanceUpdate(ctx context.Context, recipientID, grievanceID int, status, subject, exam string) error {
	title := fmt.Sprintf("Grievance Update: %s", subject)
	body := fmt.Sprintf("Your grievance for %s - %s has been %s", subject, exam, status)
	_, err := s.Publish(ctx, recipientID, models.CategoryGrievance, title, body, grievanceID)
	return err
}

func (s *Service) PublishNoticePosted(ctx context.Context, recipientID, noticeID int, noticeTitle string) error {
	title := fmt.Sprintf("New Notice: %s", noticeTitle)
	body := fmt.Sprintf("A new notice has been posted: %s", noticeTitle)
	_, err := s.Publish(ctx, recipientID, models.CategoryNotice, title, body, noticeID)
	return err
}

func (s *Service) PublishDocumentUploaded(ctx context.Context, recipientID int, subject, exam string) error {
	title := fmt.Sprintf("Answer Sheet Available: %s", subject)
	body := fmt.Sprintf("Your answer sheet for %s - %s is now available for viewing", subject, exam)
	_, err := s.Publish(ctx, recipientID, models.CategoryDocumentUpload, title, body, 0)
	return err
}
