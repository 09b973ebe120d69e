package db

// Migration 1: users and the ticket core
const migration1 = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    role TEXT NOT NULL DEFAULT 'USER',
    is_active INTEGER NOT NULL DEFAULT 1,
    display_name TEXT,
    username TEXT,
    master_percent TEXT,
    admin_percent TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tickets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    public_id TEXT NOT NULL UNIQUE,

    status TEXT NOT NULL DEFAULT 'READY_FOR_WORK',
    category TEXT NOT NULL,

    scheduled_at DATETIME,
    preferred_date_dm TEXT,

    client_name TEXT,
    client_age INTEGER,
    client_phone TEXT,
    client_address TEXT,

    problem_text TEXT,
    special_note TEXT,
    ad_source TEXT NOT NULL DEFAULT 'UNKNOWN',

    is_repeat INTEGER NOT NULL DEFAULT 0,
    repeat_ticket_ids TEXT,

    created_by_admin_id INTEGER NOT NULL,
    assigned_executor_id INTEGER,
    junior_master_id INTEGER,

    taken_at DATETIME,
    in_progress_at DATETIME,

    revenue TEXT,
    expense TEXT,
    net_profit TEXT,
    executor_percent_close TEXT,
    admin_percent_close TEXT,
    junior_percent_close TEXT,
    executor_earned TEXT,
    admin_earned TEXT,
    junior_earned TEXT,
    project_take TEXT,

    closed_at DATETIME,
    closed_by_user_id INTEGER,
    closed_comment TEXT,

    transfer_status TEXT NOT NULL DEFAULT 'NOT_SENT',
    transfer_sent_at DATETIME,
    transfer_confirmed_by_id INTEGER,
    transfer_confirmed_at DATETIME,

    lead_id TEXT,

    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (created_by_admin_id) REFERENCES users(id),
    FOREIGN KEY (assigned_executor_id) REFERENCES users(id),
    FOREIGN KEY (junior_master_id) REFERENCES users(id),
    FOREIGN KEY (closed_by_user_id) REFERENCES users(id),
    FOREIGN KEY (transfer_confirmed_by_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_tickets_client_phone ON tickets(client_phone);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_assigned_executor ON tickets(assigned_executor_id);

CREATE TABLE IF NOT EXISTS ticket_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id INTEGER NOT NULL,
    actor_id INTEGER,
    action TEXT NOT NULL,
    payload TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_ticket_events_ticket ON ticket_events(ticket_id);
`

// Migration 2: audit log, daily counters, close photos
const migration2 = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    actor_id INTEGER,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT,
    payload TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_events_entity ON audit_events(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at);

CREATE TABLE IF NOT EXISTS daily_counters (
    date TEXT PRIMARY KEY,
    counter INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ticket_close_photos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id INTEGER NOT NULL,
    file_ref TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_close_photos_ticket ON ticket_close_photos(ticket_id);
`

// Migration 3: money-operations ledger
const migration3 = `
CREATE TABLE IF NOT EXISTS ticket_money_operations (
    id TEXT PRIMARY KEY,
    ticket_id INTEGER NOT NULL,
    op_type TEXT NOT NULL,
    amount TEXT NOT NULL,
    category_snapshot TEXT,
    comment TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_money_ops_ticket ON ticket_money_operations(ticket_id);
`

// Migration 4: leads
const migration4 = `
CREATE TABLE IF NOT EXISTS leads (
    external_id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'NEW_RAW',
    source TEXT,

    client_name TEXT,
    client_phone TEXT,
    client_age INTEGER,
    problem_text TEXT,
    special_note TEXT,
    ad_source TEXT NOT NULL DEFAULT 'UNKNOWN',
    preferred_at DATETIME,

    converted_ticket_id INTEGER,

    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (converted_ticket_id) REFERENCES tickets(id)
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_client_phone ON leads(client_phone);
`

// Migration 5: master/junior-master links and project cash accounting
const migration5 = `
CREATE TABLE IF NOT EXISTS master_junior_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    master_id INTEGER NOT NULL,
    junior_master_id INTEGER NOT NULL,
    percent TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_by INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (master_id) REFERENCES users(id),
    FOREIGN KEY (junior_master_id) REFERENCES users(id),
    FOREIGN KEY (created_by) REFERENCES users(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_junior_links_active
    ON master_junior_links(junior_master_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_junior_links_master ON master_junior_links(master_id);

CREATE TABLE IF NOT EXISTS project_transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    amount TEXT NOT NULL,
    category TEXT,
    comment TEXT,
    occurred_at DATETIME NOT NULL,
    created_by INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (created_by) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_project_tx_occurred ON project_transactions(occurred_at);

CREATE TABLE IF NOT EXISTS project_shares (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    percent TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    set_by INTEGER NOT NULL,
    set_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id),
    FOREIGN KEY (set_by) REFERENCES users(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_project_shares_user_active
    ON project_shares(user_id) WHERE is_active;
`

// Migration 6: project settings
const migration6 = `
CREATE TABLE IF NOT EXISTS project_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT OR IGNORE INTO project_settings (key, value) VALUES
    ('large_expense', '10000.00'),
    ('transfer_pending_days', '3'),
    ('requests_chat_id', '0'),
    ('events_chat_id', '0');
`
