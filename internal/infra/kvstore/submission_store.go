package kvstore

import (
	"quiz-proctor/internal/domain"
)

const submissionsKeyPrefix = "quiz_submissions_"

// SubmissionStore keeps each quiz's submission records as one JSON array under
// quiz_submissions_<quizId>.
type SubmissionStore struct {
	adapter Adapter
}

func NewSubmissionStore(adapter Adapter) *SubmissionStore {
	return &SubmissionStore{adapter: adapter}
}

func (s *SubmissionStore) List(quizID string) ([]domain.SubmissionRecord, error) {
	var records []domain.SubmissionRecord
	if err := loadJSON(s.adapter, submissionsKey(quizID), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SubmissionStore) FindByStudent(quizID, studentID string) (domain.SubmissionRecord, bool, error) {
	records, err := s.List(quizID)
	if err != nil {
		return domain.SubmissionRecord{}, false, err
	}
	for _, r := range records {
		if r.StudentID == studentID {
			return r, true, nil
		}
	}
	return domain.SubmissionRecord{}, false, nil
}

// Replace filters out the student's previous record and appends rec in one write.
func (s *SubmissionStore) Replace(quizID string, rec domain.SubmissionRecord) error {
	return s.Modify(quizID, func(records []domain.SubmissionRecord) ([]domain.SubmissionRecord, error) {
		return append(withoutStudent(records, rec.StudentID), rec), nil
	})
}

func (s *SubmissionStore) RemoveStudent(quizID, studentID string) error {
	return s.Modify(quizID, func(records []domain.SubmissionRecord) ([]domain.SubmissionRecord, error) {
		return withoutStudent(records, studentID), nil
	})
}

// Modify runs fn over the stored list. Nothing is written when fn fails.
func (s *SubmissionStore) Modify(quizID string, fn func([]domain.SubmissionRecord) ([]domain.SubmissionRecord, error)) error {
	return updateJSON(s.adapter, submissionsKey(quizID), func(records []domain.SubmissionRecord) ([]domain.SubmissionRecord, error) {
		next, err := fn(records)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []domain.SubmissionRecord{}
		}
		return next, nil
	})
}

func withoutStudent(records []domain.SubmissionRecord, studentID string) []domain.SubmissionRecord {
	kept := make([]domain.SubmissionRecord, 0, len(records))
	for _, r := range records {
		if r.StudentID != studentID {
			kept = append(kept, r)
		}
	}
	return kept
}

func submissionsKey(quizID string) string {
	return submissionsKeyPrefix + quizID
}
