package service

import (
	"errors"
	"strings"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/crypto"
)

// Ошибки сервиса фолловеров
var (
	ErrInvalidPolicy      = errors.New("invalid rebalance policy")
	ErrMissingName        = errors.New("follower name is required")
	ErrMissingAccount     = errors.New("broker account id is required")
	ErrMissingCredentials = errors.New("API credentials are required")
	ErrHasActivePositions = errors.New("cannot remove follower with active positions")
)

// RegisterFollowerRequest - данные регистрации фолловера
type RegisterFollowerRequest struct {
	Name            string `json:"name"`
	BrokerAccountID string `json:"broker_account_id"`
	APIKey          string `json:"api_key"`
	APISecret       string `json:"api_secret"`
	RebalancePolicy string `json:"rebalance_policy"`
}

// FollowerService - бизнес-логика управления аккаунтами фолловеров.
//
// API ключи шифруются (AES-256-GCM) перед записью в БД и
// расшифровываются только по запросу Credentials для подключения
// к шлюзу. Наружу ключи никогда не возвращаются.
type FollowerService struct {
	followerRepo  FollowerRepositoryInterface
	positionRepo  PositionRepositoryInterface
	encryptionKey []byte
}

// NewFollowerService создает новый экземпляр сервиса.
// Ключ шифрования выводится из секрета конфигурации.
func NewFollowerService(
	followerRepo FollowerRepositoryInterface,
	positionRepo PositionRepositoryInterface,
	encryptionSecret string,
) *FollowerService {
	return &FollowerService{
		followerRepo:  followerRepo,
		positionRepo:  positionRepo,
		encryptionKey: crypto.DeriveKey(encryptionSecret),
	}
}

// Register регистрирует нового фолловера.
//
// Выполняет:
// 1. Валидацию запроса (имя, аккаунт, ключи, политика)
// 2. Шифрование API ключей
// 3. Сохранение в БД
//
// Новый фолловер создаётся выключенным: включение - отдельная
// операция после проверки подключения.
func (s *FollowerService) Register(req *RegisterFollowerRequest) (*models.FollowerAccount, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrMissingName
	}
	if strings.TrimSpace(req.BrokerAccountID) == "" {
		return nil, ErrMissingAccount
	}
	if req.APIKey == "" || req.APISecret == "" {
		return nil, ErrMissingCredentials
	}

	policy := strings.ToUpper(strings.TrimSpace(req.RebalancePolicy))
	if policy == "" {
		policy = models.RebalanceClose
	}
	if !models.ValidRebalancePolicy(policy) {
		return nil, ErrInvalidPolicy
	}

	encryptedKey, err := crypto.Encrypt(req.APIKey, s.encryptionKey)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := crypto.Encrypt(req.APISecret, s.encryptionKey)
	if err != nil {
		return nil, err
	}

	follower := &models.FollowerAccount{
		Name:            strings.TrimSpace(req.Name),
		BrokerAccountID: strings.TrimSpace(req.BrokerAccountID),
		APIKey:          encryptedKey,
		APISecret:       encryptedSecret,
		Enabled:         false,
		RebalancePolicy: policy,
	}

	if err := s.followerRepo.Create(follower); err != nil {
		return nil, err
	}

	return sanitize(follower), nil
}

// GetAll возвращает всех фолловеров без ключей
func (s *FollowerService) GetAll() ([]*models.FollowerAccount, error) {
	followers, err := s.followerRepo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make([]*models.FollowerAccount, len(followers))
	for i, f := range followers {
		result[i] = sanitize(f)
	}
	return result, nil
}

// GetByID возвращает фолловера по ID без ключей
func (s *FollowerService) GetByID(id int) (*models.FollowerAccount, error) {
	follower, err := s.followerRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	return sanitize(follower), nil
}

// UpdateCredentials заменяет API ключи фолловера
func (s *FollowerService) UpdateCredentials(id int, apiKey, apiSecret string) error {
	if apiKey == "" || apiSecret == "" {
		return ErrMissingCredentials
	}

	follower, err := s.followerRepo.GetByID(id)
	if err != nil {
		return err
	}

	follower.APIKey, err = crypto.Encrypt(apiKey, s.encryptionKey)
	if err != nil {
		return err
	}
	follower.APISecret, err = crypto.Encrypt(apiSecret, s.encryptionKey)
	if err != nil {
		return err
	}

	return s.followerRepo.Update(follower)
}

// UpdatePolicy меняет политику ребалансировки при ассайнменте
func (s *FollowerService) UpdatePolicy(id int, policy string) error {
	policy = strings.ToUpper(strings.TrimSpace(policy))
	if !models.ValidRebalancePolicy(policy) {
		return ErrInvalidPolicy
	}

	follower, err := s.followerRepo.GetByID(id)
	if err != nil {
		return err
	}

	follower.RebalancePolicy = policy
	return s.followerRepo.Update(follower)
}

// SetEnabled включает или выключает копирование сигналов.
// Выключение не трогает открытые позиции: они продолжают
// мониториться и закрываются отдельной операцией.
func (s *FollowerService) SetEnabled(id int, enabled bool) error {
	return s.followerRepo.SetEnabled(id, enabled)
}

// Remove удаляет фолловера.
// Фолловер с открытыми позициями не удаляется: сначала закрытие.
func (s *FollowerService) Remove(id int) error {
	positions, err := s.positionRepo.GetActiveByFollower(id)
	if err != nil {
		return err
	}
	if len(positions) > 0 {
		return ErrHasActivePositions
	}

	return s.followerRepo.Delete(id)
}

// Credentials возвращает расшифрованные API ключи фолловера.
// Используется только при установке соединения со шлюзом.
func (s *FollowerService) Credentials(id int) (string, string, error) {
	follower, err := s.followerRepo.GetByID(id)
	if err != nil {
		return "", "", err
	}

	apiKey, err := crypto.Decrypt(follower.APIKey, s.encryptionKey)
	if err != nil {
		return "", "", err
	}
	apiSecret, err := crypto.Decrypt(follower.APISecret, s.encryptionKey)
	if err != nil {
		return "", "", err
	}

	return apiKey, apiSecret, nil
}

// sanitize возвращает копию фолловера с очищенными ключами
func sanitize(f *models.FollowerAccount) *models.FollowerAccount {
	cp := *f
	cp.APIKey = ""
	cp.APISecret = ""
	return &cp
}
