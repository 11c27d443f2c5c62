package authclient

import "sync"

// TokenStore — долговременное хранилище пары токенов на стороне клиента.
//
// Save вызывается ДО того, как ожидающие запросы получат новый access-токен:
// повтор запроса никогда не использует токен, которого нет в хранилище
// (уход со страницы между refresh и повтором не теряет сессию).
type TokenStore interface {
	// Tokens возвращает текущую пару (access, refresh); пустые строки — сессии нет.
	Tokens() (access, refresh string)
	// Save сохраняет новую пару токенов.
	Save(access, refresh string) error
	// Clear удаляет сохранённую пару.
	Clear() error
}

// MemoryStore — потокобезопасный TokenStore в памяти процесса.
type MemoryStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Tokens() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.refresh
}

func (s *MemoryStore) Save(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}
