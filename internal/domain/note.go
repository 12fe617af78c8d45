package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NoteLimits holds the size constraints applied to notes and tags.
type NoteLimits struct {
	TitleMaxLength   int
	ContentMinLength int
	MemoDateLength   int
	TagNameMaxLength int
	MaxTagsPerNote   int
}

// DefaultNoteLimits returns the limits used when configuration leaves them unset.
func DefaultNoteLimits() NoteLimits {
	return NoteLimits{
		TitleMaxLength:   64,
		ContentMinLength: 1,
		MemoDateLength:   8,
		TagNameMaxLength: 32,
		MaxTagsPerNote:   10,
	}
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note is a user-owned memo. Fields are exported for storage mapping,
// but changes after creation go through the Change* methods.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	MemoDate  string    `json:"memo_date"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNote builds a note and checks every field against limits.
func NewNote(id, userID, title, content, memoDate string, tags []Tag, now time.Time, limits NoteLimits) (*Note, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if err := validateTitle(title, limits); err != nil {
		return nil, err
	}
	if err := validateContent(content, limits); err != nil {
		return nil, err
	}
	if err := validateMemoDate(memoDate, limits); err != nil {
		return nil, err
	}
	if err := validateTags(tags, limits); err != nil {
		return nil, err
	}

	if tags == nil {
		tags = []Tag{}
	}

	return &Note{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Content:   content,
		MemoDate:  memoDate,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (n *Note) ChangeTitle(title string, now time.Time, limits NoteLimits) error {
	if err := validateTitle(title, limits); err != nil {
		return err
	}
	n.Title = title
	n.touch(now)
	return nil
}

func (n *Note) ChangeContent(content string, now time.Time, limits NoteLimits) error {
	if err := validateContent(content, limits); err != nil {
		return err
	}
	n.Content = content
	n.touch(now)
	return nil
}

// ChangeMemoDate checks length only; the value is never parsed as a calendar date.
func (n *Note) ChangeMemoDate(memoDate string, now time.Time, limits NoteLimits) error {
	if err := validateMemoDate(memoDate, limits); err != nil {
		return err
	}
	n.MemoDate = memoDate
	n.touch(now)
	return nil
}

func (n *Note) ChangeTags(tags []Tag, now time.Time, limits NoteLimits) error {
	if err := validateTags(tags, limits); err != nil {
		return err
	}
	if tags == nil {
		tags = []Tag{}
	}
	n.Tags = tags
	n.touch(now)
	return nil
}

func (n *Note) RemoveAllTags(now time.Time) {
	n.Tags = []Tag{}
	n.touch(now)
}

// TagNames returns the names of the note's tags in their current order.
func (n *Note) TagNames() []string {
	names := make([]string, 0, len(n.Tags))
	for _, t := range n.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Touch records a modification without changing content.
func (n *Note) Touch(now time.Time) {
	n.touch(now)
}

// updated_at must advance even when the clock has not moved since the last write.
func (n *Note) touch(now time.Time) {
	if !now.After(n.UpdatedAt) {
		now = n.UpdatedAt.Add(time.Microsecond)
	}
	n.UpdatedAt = now
}

// NormalizeTagNames trims and NFC-normalizes names and drops duplicates,
// keeping first occurrence order.
func NormalizeTagNames(names []string, limits NoteLimits) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))

	for _, raw := range names {
		name := norm.NFC.String(strings.TrimSpace(raw))
		if name == "" {
			return nil, fmt.Errorf("%w: tag name is required", ErrValidation)
		}
		if utf8.RuneCountInString(name) > limits.TagNameMaxLength {
			return nil, fmt.Errorf("%w: tag name cannot exceed %d characters", ErrValidation, limits.TagNameMaxLength)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}

	if len(result) > limits.MaxTagsPerNote {
		return nil, fmt.Errorf("%w: maximum %d tags allowed per note", ErrValidation, limits.MaxTagsPerNote)
	}
	return result, nil
}

func validateTitle(title string, limits NoteLimits) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > limits.TitleMaxLength {
		return fmt.Errorf("%w: title cannot exceed %d characters", ErrValidation, limits.TitleMaxLength)
	}
	return nil
}

func validateContent(content string, limits NoteLimits) error {
	if content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) < limits.ContentMinLength {
		return fmt.Errorf("%w: content must be at least %d characters", ErrValidation, limits.ContentMinLength)
	}
	return nil
}

func validateMemoDate(memoDate string, limits NoteLimits) error {
	if memoDate == "" {
		return fmt.Errorf("%w: memo date is required", ErrValidation)
	}
	if utf8.RuneCountInString(memoDate) != limits.MemoDateLength {
		return fmt.Errorf("%w: memo date must be %d characters", ErrValidation, limits.MemoDateLength)
	}
	return nil
}

func validateTags(tags []Tag, limits NoteLimits) error {
	if len(tags) > limits.MaxTagsPerNote {
		return fmt.Errorf("%w: maximum %d tags allowed per note", ErrValidation, limits.MaxTagsPerNote)
	}
	for _, t := range tags {
		if t.Name == "" {
			return fmt.Errorf("%w: tag name is required", ErrValidation)
		}
		if utf8.RuneCountInString(t.Name) > limits.TagNameMaxLength {
			return fmt.Errorf("%w: tag name cannot exceed %d characters", ErrValidation, limits.TagNameMaxLength)
		}
	}
	return nil
}
