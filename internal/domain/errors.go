package domain

import "fmt"

// Stage names a refinement step for logging and outcome accounting.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageOCR     Stage = "ocr"
	StageExtract Stage = "extract"
	StageParse   Stage = "parse"
	StagePersist Stage = "persist"
)

// FetchError wraps a transport failure while retrieving a facility's detail
// page. Fatal to that facility's pass, never to the batch; transient network
// errors are expected and cheap to skip until the next pass.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// OcrError wraps a recognition failure for a single image. Always non-fatal:
// callers drop the image's text and keep going.
type OcrError struct {
	ImageURL string
	Err      error
}

func (e *OcrError) Error() string { return fmt.Sprintf("ocr %s: %v", e.ImageURL, e.Err) }
func (e *OcrError) Unwrap() error { return e.Err }

// ExtractionError is the terminal failure of the LLM extraction client,
// raised only after its retry budget is spent. Attempts records how many
// calls were made, so "gave up after retrying" is distinguishable from
// "failed once".
type ExtractionError struct {
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed after %d attempt(s): %v", e.Attempts, e.Err)
}
func (e *ExtractionError) Unwrap() error { return e.Err }

// MalformedReplyError means the model reply, after code-fence stripping, is
// not syntactically valid JSON. Empty replies are not malformed; see
// ParseReply.
type MalformedReplyError struct {
	Reply string
	Err   error
}

func (e *MalformedReplyError) Error() string { return fmt.Sprintf("malformed model reply: %v", e.Err) }
func (e *MalformedReplyError) Unwrap() error { return e.Err }

// StorageError wraps a persistence failure. It aborts only the affected
// facility's write, not the batch.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
