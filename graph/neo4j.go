// Neo4j-backed graph store.
//
// Schema: (Person {email}) -[:ATTENDED|:ORGANIZED]-> (Meeting {id}),
// (Meeting)-[:HAS_DOCUMENT]->(Document {id}), (Person)-[:MEMBER_OF]->(Department {name}).
// All reads are scoped to the querying user's meetings.

package graph

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prepwise/glance/model"
	"github.com/prepwise/glance/strategy"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// Validate checks that the required connection fields are present.
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("graph: URI is required")
	}
	if c.Username == "" {
		return fmt.Errorf("graph: username is required")
	}
	return nil
}

// DefaultConfig returns connection settings suitable for a local instance.
func DefaultConfig() Config {
	return Config{
		URI:                   "bolt://localhost:7687",
		Username:              "neo4j",
		Database:              "neo4j",
		MaxConnectionPoolSize: 50,
		ConnectionTimeout:     30 * time.Second,
	}
}

// Neo4jStore implements QueryService and Upserter against a Neo4j database.
type Neo4jStore struct {
	config Config
	driver neo4j.DriverWithContext
}

// NewNeo4jStore creates a store with the given configuration.
// The store must be connected via Connect() before use.
func NewNeo4jStore(config Config) (*Neo4jStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Neo4jStore{config: config}, nil
}

// Connect establishes a connection to the Neo4j database.
// Uses exponential backoff for connection retries.
func (s *Neo4jStore) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(s.config.Username, s.config.Password, "")

	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = s.config.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = s.config.ConnectionTimeout
	}

	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(s.config.URI, auth, driverConfig)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				s.driver = driver
				return nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("graph: connection attempt cancelled: %w", ctx.Err())
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > s.config.ConnectionTimeout {
			delay = s.config.ConnectionTimeout
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("graph: connection attempt cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("graph: failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// Close releases the driver and its connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("graph: close driver: %w", err)
	}
	s.driver = nil
	return nil
}

// Ping verifies connectivity, for health checks.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if s.driver == nil {
		return fmt.Errorf("graph: driver not connected")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.driver.VerifyConnectivity(pingCtx)
}

// ExecuteQuery runs one typed query. The switch over query types is
// exhaustive: adding a QueryType without a branch here is a compile-visible
// omission, not a runtime typo.
func (s *Neo4jStore) ExecuteQuery(ctx context.Context, queryType strategy.QueryType, params map[string]any, user model.UserContext) (strategy.ResultSet, error) {
	cypher, queryParams, err := buildQuery(queryType, params, user)
	if err != nil {
		return strategy.ResultSet{}, err
	}
	return s.runRead(ctx, cypher, queryParams)
}

// buildQuery maps a typed query to Cypher. Every query is scoped to the
// user's own meetings via their email.
func buildQuery(queryType strategy.QueryType, params map[string]any, user model.UserContext) (string, map[string]any, error) {
	queryParams := map[string]any{
		"userEmail": user.Email,
		"limit":     intParam(params, "limit", 25),
	}
	since, until := timeframeBounds(params)
	queryParams["since"] = since
	queryParams["until"] = until

	switch queryType {
	case strategy.QueryFindMeetings:
		queryParams["term"] = stringParam(params, "query", "")
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)
			WHERE m.startTime >= $since AND m.startTime <= $until
			  AND ($term = '' OR toLower(m.title) CONTAINS toLower($term))
			RETURN m.id AS id, m.title AS title, m.startTime AS startTime,
			       m.endTime AS endTime, m.location AS location, m.organizer AS organizer
			ORDER BY m.startTime DESC LIMIT $limit`, queryParams, nil

	case strategy.QueryGetMeetingDetails:
		queryParams["meetingIds"] = sliceParam(params, "meetingIds")
		return `
			MATCH (m:Meeting) WHERE m.id IN $meetingIds
			OPTIONAL MATCH (p:Person)-[:ATTENDED]->(m)
			RETURN m.id AS id, m.title AS title, m.description AS description,
			       m.startTime AS startTime, m.endTime AS endTime,
			       m.location AS location, m.organizer AS organizer,
			       collect(p.email) AS participants`, queryParams, nil

	case strategy.QueryGetParticipants:
		queryParams["meetingIds"] = sliceParam(params, "meetingIds")
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)<-[:ATTENDED]-(p:Person)
			WHERE (size($meetingIds) = 0 OR m.id IN $meetingIds)
			  AND m.startTime >= $since AND m.startTime <= $until
			RETURN DISTINCT p.email AS email, p.name AS name, p.department AS department,
			       count(m) AS sharedMeetings
			ORDER BY sharedMeetings DESC LIMIT $limit`, queryParams, nil

	case strategy.QueryFindDocuments:
		queryParams["term"] = stringParam(params, "query", "")
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)-[:HAS_DOCUMENT]->(d:Document)
			WHERE $term = '' OR toLower(d.title) CONTAINS toLower($term)
			RETURN DISTINCT d.id AS id, d.title AS title, d.url AS url, d.type AS type,
			       m.id AS meetingId
			LIMIT $limit`, queryParams, nil

	case strategy.QueryGetDocumentContent:
		queryParams["documentIds"] = sliceParam(params, "documentIds")
		return `
			MATCH (d:Document) WHERE d.id IN $documentIds
			RETURN d.id AS id, d.title AS title, d.url AS url, d.content AS content`, queryParams, nil

	case strategy.QueryFindPeople:
		queryParams["term"] = stringParam(params, "query", "")
		return `
			MATCH (p:Person)
			WHERE $term = '' OR toLower(p.name) CONTAINS toLower($term)
			   OR toLower(p.email) CONTAINS toLower($term)
			OPTIONAL MATCH (p)-[:MEMBER_OF]->(dept:Department)
			RETURN p.email AS email, p.name AS name, dept.name AS department
			LIMIT $limit`, queryParams, nil

	case strategy.QueryGetPersonProfile:
		queryParams["email"] = stringParam(params, "email", "")
		return `
			MATCH (p:Person {email: $email})
			OPTIONAL MATCH (p)-[:ATTENDED]->(m:Meeting)
			OPTIONAL MATCH (p)-[:MEMBER_OF]->(dept:Department)
			RETURN p.email AS email, p.name AS name, p.role AS role,
			       dept.name AS department, count(m) AS meetingCount`, queryParams, nil

	case strategy.QueryGetTimeline:
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)
			WHERE m.startTime >= $since AND m.startTime <= $until
			RETURN m.id AS id, m.title AS title, m.startTime AS startTime, m.endTime AS endTime
			ORDER BY m.startTime ASC LIMIT $limit`, queryParams, nil

	case strategy.QueryAnalyzeCollaboration:
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)<-[:ATTENDED]-(p:Person)
			WHERE m.startTime >= $since AND m.startTime <= $until AND p.email <> $userEmail
			RETURN p.email AS email, p.name AS name, count(m) AS sharedMeetings,
			       collect(DISTINCT m.title)[0..5] AS recentMeetings
			ORDER BY sharedMeetings DESC LIMIT $limit`, queryParams, nil

	case strategy.QueryAnalyzeMeetingPatterns:
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)
			WHERE m.startTime >= $since AND m.startTime <= $until
			WITH date(datetime(m.startTime)) AS day, count(m) AS meetings,
			     sum(duration.between(datetime(m.startTime), datetime(m.endTime)).minutes) AS minutes
			RETURN toString(day) AS day, meetings, minutes
			ORDER BY day ASC`, queryParams, nil

	case strategy.QueryAnalyzeTopics:
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)
			WHERE m.startTime >= $since AND m.startTime <= $until
			RETURN m.id AS id, m.title AS title, m.description AS description
			ORDER BY m.startTime DESC LIMIT $limit`, queryParams, nil

	case strategy.QueryGetDepartmentInsights:
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)<-[:ATTENDED]-(p:Person)-[:MEMBER_OF]->(dept:Department)
			WHERE m.startTime >= $since AND m.startTime <= $until
			RETURN dept.name AS department, count(DISTINCT m) AS meetings,
			       count(DISTINCT p) AS people
			ORDER BY meetings DESC`, queryParams, nil

	case strategy.QueryGeneralSearch:
		queryParams["term"] = stringParam(params, "query", "")
		return `
			MATCH (u:Person {email: $userEmail})-[:ATTENDED|ORGANIZED]->(m:Meeting)
			WHERE toLower(m.title) CONTAINS toLower($term)
			   OR toLower(coalesce(m.description, '')) CONTAINS toLower($term)
			RETURN m.id AS id, m.title AS title, m.startTime AS startTime
			ORDER BY m.startTime DESC LIMIT $limit`, queryParams, nil
	}

	return "", nil, fmt.Errorf("graph: unsupported query type %q", queryType)
}

func (s *Neo4jStore) runRead(ctx context.Context, cypher string, params map[string]any) (strategy.ResultSet, error) {
	if s.driver == nil {
		return strategy.ResultSet{}, fmt.Errorf("graph: driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		neoResult, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := neoResult.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return convertRecords(records), nil
	})
	if err != nil {
		return strategy.ResultSet{}, fmt.Errorf("graph: query execution failed: %w", err)
	}

	return result.(strategy.ResultSet), nil
}

// CreatePerson upserts a person node keyed by email.
func (s *Neo4jStore) CreatePerson(ctx context.Context, person model.Person) error {
	cypher := `
		MERGE (p:Person {email: $email})
		ON CREATE SET p.name = $name, p.createdAt = datetime()
		SET p.name = coalesce(nullIf($name, ''), p.name),
		    p.role = coalesce(nullIf($role, ''), p.role)
		WITH p
		CALL {
			WITH p
			WITH p WHERE $department <> ''
			MERGE (dept:Department {name: $department})
			MERGE (p)-[:MEMBER_OF]->(dept)
		}
		RETURN p.email`
	params := map[string]any{
		"email":      person.Email,
		"name":       person.Name,
		"role":       person.Role,
		"department": person.Department,
	}
	return s.runWrite(ctx, cypher, params)
}

// CreateMeeting upserts a meeting node keyed by the source calendar event id,
// linking organizer and attendees.
func (s *Neo4jStore) CreateMeeting(ctx context.Context, event model.CalendarEvent) error {
	cypher := `
		MERGE (m:Meeting {id: $id})
		SET m.title = $title, m.description = $description,
		    m.startTime = $startTime, m.endTime = $endTime,
		    m.location = $location, m.organizer = $organizer
		WITH m
		CALL {
			WITH m
			WITH m WHERE $organizer <> ''
			MERGE (o:Person {email: $organizer})
			MERGE (o)-[:ORGANIZED]->(m)
		}
		WITH m
		UNWIND $attendees AS attendee
		MERGE (p:Person {email: attendee})
		MERGE (p)-[:ATTENDED]->(m)
		RETURN m.id`
	params := map[string]any{
		"id":          event.GoogleEventID,
		"title":       event.Title,
		"description": event.Description,
		"startTime":   event.StartTime.UTC().Format(time.RFC3339),
		"endTime":     event.EndTime.UTC().Format(time.RFC3339),
		"location":    event.Location,
		"organizer":   event.Organizer,
		"attendees":   event.Attendees,
	}
	return s.runWrite(ctx, cypher, params)
}

func (s *Neo4jStore) runWrite(ctx context.Context, cypher string, params map[string]any) error {
	if s.driver == nil {
		return fmt.Errorf("graph: driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		neoResult, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		_, err = neoResult.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: write failed: %w", err)
	}
	return nil
}

// convertRecords flattens Neo4j records into generic result maps.
func convertRecords(records []*neo4j.Record) strategy.ResultSet {
	out := strategy.ResultSet{Results: make([]map[string]any, 0, len(records))}
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		out.Results = append(out.Results, row)
	}
	return out
}

// Parameter helpers. Step parameters come from LLM JSON, so numbers arrive
// as float64 and lists as []any.

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func sliceParam(params map[string]any, key string) []any {
	switch v := params[key].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return []any{}
}

// timeframeBounds resolves a timeframe parameter to RFC3339 bounds.
// Recognized values: "today", "week", "month", "recent" (30 days), and
// "quarter"; anything else falls back to "recent".
func timeframeBounds(params map[string]any) (string, string) {
	now := time.Now().UTC()
	until := now.Add(365 * 24 * time.Hour) // include upcoming meetings

	timeframe := stringParam(params, "timeframe", "")
	var since time.Time
	switch timeframe {
	case "":
		since = now.Add(-10 * 365 * 24 * time.Hour) // no filter: effectively unbounded
	case "today":
		since = now.Truncate(24 * time.Hour)
	case "week":
		since = now.Add(-7 * 24 * time.Hour)
	case "month":
		since = now.Add(-30 * 24 * time.Hour)
	case "quarter":
		since = now.Add(-90 * 24 * time.Hour)
	default: // "recent" and unrecognized values
		since = now.Add(-30 * 24 * time.Hour)
	}
	return since.Format(time.RFC3339), until.Format(time.RFC3339)
}
