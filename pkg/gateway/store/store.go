package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx connection pool. Identifying scalar
// columns are sealed with the Cipher; list columns are stored as JSON text.
type Postgres struct {
	pool   *pgxpool.Pool
	cipher *Cipher
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string, cipher *Cipher) (*Postgres, error) {
	if cipher == nil {
		return nil, fmt.Errorf("store: cipher is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Postgres{pool: pool, cipher: cipher}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping reports database reachability for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const recordColumns = `
	name, age, gender, chief_complaint, symptoms,
	temp, bp, pulse, spo2,
	medical_history, family_history, allergies,
	tentative_doctor_diagnosis, initial_llm_diagnosis,
	medications, transcript_summary,
	ration_card_type, income_bracket, occupation, caste_category,
	housing_type, location, scheme_eligibility`

func (p *Postgres) Create(ctx context.Context, rec *PatientRecord) (int64, error) {
	args, err := p.recordArgs(rec)
	if err != nil {
		return 0, err
	}
	var id int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO patients (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id`, args...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert patient: %w", err)
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, id int64, rec *PatientRecord) (bool, error) {
	args, err := p.recordArgs(rec)
	if err != nil {
		return false, err
	}
	args = append(args, id)
	tag, err := p.pool.Exec(ctx, `
		UPDATE patients SET
			name = $1, age = $2, gender = $3, chief_complaint = $4, symptoms = $5,
			temp = $6, bp = $7, pulse = $8, spo2 = $9,
			medical_history = $10, family_history = $11, allergies = $12,
			tentative_doctor_diagnosis = $13, initial_llm_diagnosis = $14,
			medications = $15, transcript_summary = $16,
			ration_card_type = $17, income_bracket = $18, occupation = $19,
			caste_category = $20, housing_type = $21, location = $22,
			scheme_eligibility = $23
		WHERE id = $24`, args...)
	if err != nil {
		return false, fmt.Errorf("store: update patient %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Get(ctx context.Context, id int64) (*PatientRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, `+recordColumns+`, created_at
		FROM patients WHERE id = $1`, id)
	rec, err := p.scanRecord(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get patient %d: %w", id, err)
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context) ([]*PatientRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, `+recordColumns+`, created_at
		FROM patients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list patients: %w", err)
	}
	defer rows.Close()

	var recs []*PatientRecord
	for rows.Next() {
		rec, err := p.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list patients: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list patients: %w", err)
	}
	return recs, nil
}

func (p *Postgres) Delete(ctx context.Context, id int64) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete patient %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) SetSummary(ctx context.Context, id int64, summary string) error {
	enc, err := p.encField(summary)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx,
		`UPDATE patients SET transcript_summary = $1 WHERE id = $2`, enc, id); err != nil {
		return fmt.Errorf("store: set summary for patient %d: %w", id, err)
	}
	return nil
}

// recordArgs builds the 23 column values matching recordColumns order.
func (p *Postgres) recordArgs(rec *PatientRecord) ([]any, error) {
	enc := func(dst **string, plain string) error {
		v, err := p.encField(plain)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}

	encrypted := make([]*string, 17)
	plains := []string{
		rec.Name, rec.Age, rec.Gender, rec.ChiefComplaint,
		rec.Vitals.Temperature, rec.Vitals.BloodPressure, rec.Vitals.Pulse, rec.Vitals.SpO2,
		rec.TentativeDoctorDiagnosis, rec.InitialLLMDiagnosis,
		rec.TranscriptSummary,
		rec.RationCardType, rec.IncomeBracket, rec.Occupation,
		rec.CasteCategory, rec.HousingType, rec.Location,
	}
	for i, plain := range plains {
		if err := enc(&encrypted[i], plain); err != nil {
			return nil, err
		}
	}

	var eligibility *string
	if rec.SchemeEligibility != nil {
		b, err := json.Marshal(rec.SchemeEligibility)
		if err != nil {
			return nil, fmt.Errorf("store: marshal scheme_eligibility: %w", err)
		}
		s := string(b)
		eligibility = &s
	}

	return []any{
		encrypted[0], encrypted[1], encrypted[2], encrypted[3], listJSON(rec.Symptoms),
		encrypted[4], encrypted[5], encrypted[6], encrypted[7],
		listJSON(rec.MedicalHistory), listJSON(rec.FamilyHistory), listJSON(rec.Allergies),
		encrypted[8], encrypted[9],
		listJSON(rec.Medications), encrypted[10],
		encrypted[11], encrypted[12], encrypted[13], encrypted[14],
		encrypted[15], encrypted[16], eligibility,
	}, nil
}

func (p *Postgres) scanRecord(row pgx.Row) (*PatientRecord, error) {
	var (
		rec         PatientRecord
		enc         [17]*string
		lists       [5]*string
		eligibility *string
		createdAt   *time.Time
	)
	err := row.Scan(
		&rec.ID,
		&enc[0], &enc[1], &enc[2], &enc[3], &lists[0],
		&enc[4], &enc[5], &enc[6], &enc[7],
		&lists[1], &lists[2], &lists[3],
		&enc[8], &enc[9],
		&lists[4], &enc[10],
		&enc[11], &enc[12], &enc[13], &enc[14],
		&enc[15], &enc[16], &eligibility,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	dec := p.decField
	rec.Name = dec(enc[0])
	rec.Age = dec(enc[1])
	rec.Gender = dec(enc[2])
	rec.ChiefComplaint = dec(enc[3])
	rec.Vitals = Vitals{
		Temperature:   dec(enc[4]),
		BloodPressure: dec(enc[5]),
		Pulse:         dec(enc[6]),
		SpO2:          dec(enc[7]),
	}
	rec.TentativeDoctorDiagnosis = dec(enc[8])
	rec.InitialLLMDiagnosis = dec(enc[9])
	rec.TranscriptSummary = dec(enc[10])
	rec.RationCardType = dec(enc[11])
	rec.IncomeBracket = dec(enc[12])
	rec.Occupation = dec(enc[13])
	rec.CasteCategory = dec(enc[14])
	rec.HousingType = dec(enc[15])
	rec.Location = dec(enc[16])

	rec.Symptoms = parseList(lists[0])
	rec.MedicalHistory = parseList(lists[1])
	rec.FamilyHistory = parseList(lists[2])
	rec.Allergies = parseList(lists[3])
	rec.Medications = parseList(lists[4])
	if eligibility != nil {
		_ = json.Unmarshal([]byte(*eligibility), &rec.SchemeEligibility)
	}
	if createdAt != nil {
		rec.CreatedAt = *createdAt
	}
	return &rec, nil
}

// encField seals one value, mapping an empty value to NULL so never-captured
// fields do not produce ciphertext rows.
func (p *Postgres) encField(plain string) (*string, error) {
	if plain == "" {
		return nil, nil
	}
	sealed, err := p.cipher.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// decField opens one value. Undecryptable rows (rotated key, corrupt data)
// degrade to empty rather than failing the whole read.
func (p *Postgres) decField(sealed *string) string {
	if sealed == nil || *sealed == "" {
		return ""
	}
	plain, err := p.cipher.Decrypt(*sealed)
	if err != nil {
		return ""
	}
	return plain
}

func listJSON(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func parseList(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil
	}
	return out
}
