package store

// Schema migrations, applied in order at startup. Every statement is
// idempotent (IF NOT EXISTS) so a restart re-applies harmlessly.

var migrations = []string{
	schemaUsers,
	schemaRoster,
	schemaAttendance,
	schemaGrades,
	schemaBoards,
}

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username VARCHAR(64) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role VARCHAR(16) NOT NULL,
    first_name VARCHAR(100) NOT NULL DEFAULT '',
    last_name VARCHAR(100) NOT NULL DEFAULT '',
    profile_image TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('student', 'teacher', 'admin', 'transport'))
);
`

const schemaRoster = `
CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    student_code VARCHAR(32) NOT NULL UNIQUE,
    roll_number VARCHAR(32) NOT NULL DEFAULT '',
    department VARCHAR(100) NOT NULL DEFAULT '',
    semester INTEGER NOT NULL DEFAULT 0,
    face_descriptor JSONB,
    face_registered_at TIMESTAMPTZ,
    total_classes INTEGER NOT NULL DEFAULT 0,
    attended_classes INTEGER NOT NULL DEFAULT 0,
    late_classes INTEGER NOT NULL DEFAULT 0,
    absent_classes INTEGER NOT NULL DEFAULT 0,
    attendance_percentage INTEGER NOT NULL DEFAULT 0,
    last_attendance_at TIMESTAMPTZ,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_student_status CHECK (status IN ('active', 'inactive', 'graduated')),
    CONSTRAINT valid_counters CHECK (
        total_classes >= 0 AND attended_classes >= 0 AND
        late_classes >= 0 AND absent_classes >= 0
    ),
    CONSTRAINT valid_percentage CHECK (attendance_percentage BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS teachers (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    employee_code VARCHAR(32) NOT NULL UNIQUE,
    department VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS classes (
    id UUID PRIMARY KEY,
    class_name VARCHAR(100) NOT NULL,
    class_code VARCHAR(32) NOT NULL UNIQUE,
    teacher_id UUID REFERENCES teachers(id) ON DELETE SET NULL,
    semester INTEGER NOT NULL DEFAULT 0,
    department VARCHAR(100) NOT NULL DEFAULT '',
    academic_year VARCHAR(16) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const schemaAttendance = `
CREATE TABLE IF NOT EXISTS attendance_events (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    class_id UUID REFERENCES classes(id) ON DELETE SET NULL,
    day DATE NOT NULL,
    time_in TIMESTAMPTZ NOT NULL,
    time_out TIMESTAMPTZ,
    status VARCHAR(16) NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    marked_by UUID REFERENCES users(id) ON DELETE SET NULL,
    is_automated BOOLEAN NOT NULL DEFAULT FALSE,
    snapshot_url TEXT NOT NULL DEFAULT '',
    remarks TEXT NOT NULL DEFAULT '',
    duration_minutes INTEGER,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_event_status CHECK (status IN ('present', 'absent', 'late', 'leave', 'excused')),
    CONSTRAINT valid_confidence CHECK (confidence >= 0 AND confidence <= 1)
);

-- One event per (student, class, day). The expression handles NULL
-- class_id, which otherwise never conflicts with itself.
CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_key
    ON attendance_events (student_id, COALESCE(class_id, '00000000-0000-0000-0000-000000000000'::uuid), day);

CREATE INDEX IF NOT EXISTS idx_attendance_student_day ON attendance_events (student_id, day);
CREATE INDEX IF NOT EXISTS idx_attendance_class_day ON attendance_events (class_id, day);
CREATE INDEX IF NOT EXISTS idx_attendance_day_status ON attendance_events (day, status);
`

const schemaGrades = `
CREATE TABLE IF NOT EXISTS grades (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    subject VARCHAR(100) NOT NULL,
    semester VARCHAR(16) NOT NULL,
    class_id UUID REFERENCES classes(id) ON DELETE SET NULL,
    marks_internal INTEGER NOT NULL DEFAULT 0,
    marks_external INTEGER NOT NULL DEFAULT 0,
    marks_total INTEGER NOT NULL DEFAULT 0,
    max_marks INTEGER NOT NULL DEFAULT 100,
    letter VARCHAR(4) NOT NULL DEFAULT '',
    credits INTEGER NOT NULL DEFAULT 3,
    teacher_id UUID REFERENCES users(id) ON DELETE SET NULL,
    remarks TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_grade_subject UNIQUE (student_id, subject, semester)
);

CREATE INDEX IF NOT EXISTS idx_grades_student_semester ON grades (student_id, semester);
`

const schemaBoards = `
CREATE TABLE IF NOT EXISTS announcements (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    content TEXT NOT NULL,
    author_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    author_name VARCHAR(200) NOT NULL DEFAULT '',
    author_role VARCHAR(16) NOT NULL,
    target_class UUID REFERENCES classes(id) ON DELETE SET NULL,
    priority VARCHAR(16) NOT NULL DEFAULT 'normal',
    category VARCHAR(16) NOT NULL DEFAULT 'general',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_priority CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
    CONSTRAINT valid_category CHECK (category IN ('general', 'academic', 'exam', 'event', 'holiday'))
);

CREATE INDEX IF NOT EXISTS idx_announcements_created ON announcements (created_at DESC);

CREATE TABLE IF NOT EXISTS timetables (
    id UUID PRIMARY KEY,
    class_name VARCHAR(100) NOT NULL UNIQUE,
    department VARCHAR(100) NOT NULL DEFAULT '',
    semester VARCHAR(16) NOT NULL DEFAULT '',
    schedule JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_by UUID REFERENCES users(id) ON DELETE SET NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bus_routes (
    id UUID PRIMARY KEY,
    number VARCHAR(16) NOT NULL,
    name VARCHAR(100) NOT NULL,
    timing VARCHAR(100) NOT NULL,
    stops JSONB NOT NULL DEFAULT '[]'::jsonb,
    whatsapp VARCHAR(32) NOT NULL DEFAULT '',
    color VARCHAR(16) NOT NULL DEFAULT '#6366f1',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_by UUID REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bus_routes_number ON bus_routes (number);

CREATE TABLE IF NOT EXISTS bus_notices (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    content TEXT NOT NULL,
    priority VARCHAR(16) NOT NULL DEFAULT 'normal',
    author_name VARCHAR(100) NOT NULL DEFAULT 'Transport Incharge',
    created_by UUID REFERENCES users(id) ON DELETE SET NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_notice_priority CHECK (priority IN ('normal', 'high', 'urgent'))
);
`
