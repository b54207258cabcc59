package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/VallejoLeonardo/alumnosb/types"
)

// StudentRepository handles persistence for student records.
type StudentRepository struct {
	db *sql.DB
}

func NewStudentRepository(db *sql.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `
	matricula, first_name, last_name_paternal, last_name_maternal, sex,
	street, street_number, neighborhood, postal_code, phone, email,
	facebook, instagram, blood_type, emergency_contact_name,
	emergency_contact_phone, password_hash, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (types.Student, error) {
	var s types.Student
	err := row.Scan(
		&s.Matricula,
		&s.FirstName,
		&s.LastNamePaternal,
		&s.LastNameMaternal,
		&s.Sex,
		&s.Street,
		&s.StreetNumber,
		&s.Neighborhood,
		&s.PostalCode,
		&s.Phone,
		&s.Email,
		&s.Facebook,
		&s.Instagram,
		&s.BloodType,
		&s.EmergencyContactName,
		&s.EmergencyContactPhone,
		&s.PasswordHash,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func (r *StudentRepository) GetByMatricula(ctx context.Context, matricula string) (types.Student, error) {
	const query = `
		SELECT ` + studentColumns + `
		FROM students
		WHERE matricula = $1`
	student, err := scanStudent(r.db.QueryRowContext(ctx, query, matricula))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, ErrNotFound
		}
		return types.Student{}, err
	}
	return student, nil
}

func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (types.Student, error) {
	const query = `
		SELECT ` + studentColumns + `
		FROM students
		WHERE email = $1`
	student, err := scanStudent(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, ErrNotFound
		}
		return types.Student{}, err
	}
	return student, nil
}

// List returns one page of student records plus the total count. A non-empty
// search term filters on matricula and name fields.
func (r *StudentRepository) List(ctx context.Context, search string, offset, limit int) ([]types.Student, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	pattern := "%" + search + "%"

	const countQuery = `
		SELECT COUNT(1) FROM students
		WHERE $1 = '' OR matricula ILIKE $2 OR first_name ILIKE $2
			OR last_name_paternal ILIKE $2 OR last_name_maternal ILIKE $2`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, search, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + studentColumns + `
		FROM students
		WHERE $1 = '' OR matricula ILIKE $2 OR first_name ILIKE $2
			OR last_name_paternal ILIKE $2 OR last_name_maternal ILIKE $2
		ORDER BY first_name, matricula
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, search, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	students := make([]types.Student, 0, limit)
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return students, total, nil
}

func (r *StudentRepository) Create(ctx context.Context, student types.Student) (types.Student, error) {
	now := time.Now()
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `
		INSERT INTO students (
			matricula, first_name, last_name_paternal, last_name_maternal, sex,
			street, street_number, neighborhood, postal_code, phone, email,
			facebook, instagram, blood_type, emergency_contact_name,
			emergency_contact_phone, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		student.Matricula,
		student.FirstName,
		student.LastNamePaternal,
		student.LastNameMaternal,
		student.Sex,
		student.Street,
		student.StreetNumber,
		student.Neighborhood,
		student.PostalCode,
		student.Phone,
		student.Email,
		student.Facebook,
		student.Instagram,
		student.BloodType,
		student.EmergencyContactName,
		student.EmergencyContactPhone,
		student.PasswordHash,
		student.CreatedAt,
		student.UpdatedAt,
	); err != nil {
		return types.Student{}, translateError(err)
	}
	return student, nil
}

func (r *StudentRepository) Update(ctx context.Context, student types.Student) (types.Student, error) {
	student.UpdatedAt = time.Now()

	const query = `
		UPDATE students
		SET first_name = $1,
			last_name_paternal = $2,
			last_name_maternal = $3,
			sex = $4,
			street = $5,
			street_number = $6,
			neighborhood = $7,
			postal_code = $8,
			phone = $9,
			email = $10,
			facebook = $11,
			instagram = $12,
			blood_type = $13,
			emergency_contact_name = $14,
			emergency_contact_phone = $15,
			password_hash = $16,
			updated_at = $17
		WHERE matricula = $18`
	result, err := r.db.ExecContext(
		ctx,
		query,
		student.FirstName,
		student.LastNamePaternal,
		student.LastNameMaternal,
		student.Sex,
		student.Street,
		student.StreetNumber,
		student.Neighborhood,
		student.PostalCode,
		student.Phone,
		student.Email,
		student.Facebook,
		student.Instagram,
		student.BloodType,
		student.EmergencyContactName,
		student.EmergencyContactPhone,
		student.PasswordHash,
		student.UpdatedAt,
		student.Matricula,
	)
	if err != nil {
		return types.Student{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Student{}, err
	}
	if affected == 0 {
		return types.Student{}, ErrNotFound
	}
	return student, nil
}

func (r *StudentRepository) Delete(ctx context.Context, matricula string) error {
	const query = `DELETE FROM students WHERE matricula = $1`
	result, err := r.db.ExecContext(ctx, query, matricula)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
