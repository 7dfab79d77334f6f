package storage

const schema = `
-- One row per registered account.
CREATE TABLE IF NOT EXISTS users (
    username TEXT NOT NULL,
    password_hash TEXT NOT NULL
);

-- Weekly course blocks. day is an English weekday name, start_time/end_time are HH:MM.
CREATE TABLE IF NOT EXISTS schedule (
    username TEXT NOT NULL,
    course TEXT NOT NULL,
    day TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    added TEXT NOT NULL DEFAULT ''
);

-- Attendance marks. date is YYYY-MM-DD.
CREATE TABLE IF NOT EXISTS attendance (
    username TEXT NOT NULL,
    course TEXT NOT NULL,
    date TEXT NOT NULL
);
`
