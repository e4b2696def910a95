package recruiting

// NotAvailable fills optional display fields missing upstream.
const NotAvailable = "N/A"

// Job is the simplified job posting returned to callers.
type Job struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	DepartmentName string `json:"departmentName"`
	LocationName   string `json:"locationName"`
}

// Stage is one interview stage of a job's default plan.
type Stage struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	OrderInInterviewPlan *int   `json:"orderInInterviewPlan"`
}

// Candidate is an applicant enriched with their resume handle, which is
// nil when the candidate has no resume or the lookup failed.
type Candidate struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	ApplicationID    string  `json:"applicationId"`
	Stage            string  `json:"stage"`
	AppliedAt        string  `json:"appliedAt"`
	ResumeFileHandle *string `json:"resumeFileHandle"`
}

// File is a downloaded document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileInfo is a resolved, short-lived download location.
type FileInfo struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// BulkResult summarizes a bulk download.
type BulkResult struct {
	Entries []string
	Skipped int
}

// Wire shapes of the Ashby records this package reads.

type named struct {
	Name *string `json:"name"`
}

func (n *named) nameOr(fallback string) string {
	if n == nil || n.Name == nil {
		return fallback
	}
	return *n.Name
}

type apiJob struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Department *named `json:"department"`
	Location   *named `json:"location"`
}

func (j apiJob) simplify() Job {
	return Job{
		ID:             j.ID,
		Title:          j.Title,
		Status:         j.Status,
		DepartmentName: j.Department.nameOr(NotAvailable),
		LocationName:   j.Location.nameOr(NotAvailable),
	}
}

type apiJobInfo struct {
	DefaultInterviewPlanID string `json:"defaultInterviewPlanId"`
}

type apiStage struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	OrderInInterviewPlan *int   `json:"orderInInterviewPlan"`
}

type apiApplication struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	Candidate *struct {
		ID                  string `json:"id"`
		Name                string `json:"name"`
		PrimaryEmailAddress *struct {
			Value *string `json:"value"`
		} `json:"primaryEmailAddress"`
	} `json:"candidate"`
	CurrentInterviewStage *struct {
		ID    string  `json:"id"`
		Title *string `json:"title"`
	} `json:"currentInterviewStage"`
}

func (a apiApplication) stageID() string {
	if a.CurrentInterviewStage == nil {
		return ""
	}
	return a.CurrentInterviewStage.ID
}

func (a apiApplication) candidate() Candidate {
	c := Candidate{
		ApplicationID: a.ID,
		AppliedAt:     a.CreatedAt,
		Email:         NotAvailable,
		Stage:         NotAvailable,
	}
	if a.Candidate != nil {
		c.ID = a.Candidate.ID
		c.Name = a.Candidate.Name
		if e := a.Candidate.PrimaryEmailAddress; e != nil && e.Value != nil {
			c.Email = *e.Value
		}
	}
	if s := a.CurrentInterviewStage; s != nil && s.Title != nil {
		c.Stage = *s.Title
	}
	return c
}

type apiCandidateInfo struct {
	ResumeFileHandle *struct {
		Handle string `json:"handle"`
	} `json:"resumeFileHandle"`
}
